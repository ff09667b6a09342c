package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// supabaseClient is the concrete Client backed by the Supabase Auth API.
type supabaseClient struct {
	baseURL    string // e.g. "https://xyzcompany.supabase.co"
	serviceKey string // service-role key; grants access to the admin user list
	httpClient *http.Client
}

// NewSupabaseClient returns a Client that talks to Supabase Auth.
func NewSupabaseClient(baseURL, serviceKey string) Client {
	return &supabaseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ─── API SHAPES ──────────────────────────────────────────────────────────────

type listUsersResponse struct {
	Users []User `json:"users"`
}

type authErrorResponse struct {
	Message string `json:"msg"`
	Error   string `json:"error_description"`
}

// ─── CLIENT IMPLEMENTATION ───────────────────────────────────────────────────

// ListUsers fetches the full user list via the admin endpoint. Supabase pages
// this endpoint; a generous per_page covers the single-tenant scale this
// service runs at.
func (c *supabaseClient) ListUsers(ctx context.Context) ([]User, error) {
	body, err := c.get(ctx, "/auth/v1/admin/users?per_page=1000", c.serviceKey)
	if err != nil {
		return nil, err
	}

	var parsed listUsersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("identity: unmarshal user list: %w", err)
	}
	return parsed.Users, nil
}

// VerifyToken resolves a user access token via GET /auth/v1/user.
func (c *supabaseClient) VerifyToken(ctx context.Context, accessToken string) (User, error) {
	body, err := c.get(ctx, "/auth/v1/user", accessToken)
	if err != nil {
		return User{}, err
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return User{}, fmt.Errorf("identity: unmarshal user: %w", err)
	}
	if user.ID == "" {
		return User{}, fmt.Errorf("identity: token resolved to no user")
	}
	return user, nil
}

func (c *supabaseClient) get(ctx context.Context, path, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}

	// Supabase expects the project key in apikey and the credential as Bearer.
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("identity: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed authErrorResponse
		if json.Unmarshal(respBytes, &parsed) == nil && (parsed.Message != "" || parsed.Error != "") {
			msg := parsed.Message
			if msg == "" {
				msg = parsed.Error
			}
			return nil, fmt.Errorf("identity: auth API error (status %d): %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("identity: unexpected status %d: %.200s", resp.StatusCode, string(respBytes))
	}

	return respBytes, nil
}
