// Package identity defines the interface to the external auth provider and
// provides a Supabase Auth-backed implementation.
//
// The provider offers no batched lookup by id, so email resolution is a bulk
// "list all users" call filtered client-side.
package identity

import "context"

// User is the subset of an auth user the reminder and API layers need.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Client is the interface the reminder service and the HTTP auth middleware
// use. Tests inject a stub that returns canned users.
type Client interface {
	// ListUsers returns every user known to the auth provider. Called once per
	// reminder run; a failure here aborts the whole run, since dispatching
	// without knowing valid emails would be guesswork.
	ListUsers(ctx context.Context) ([]User, error)

	// VerifyToken resolves a user access token to its user. Used by the CRUD
	// auth middleware.
	VerifyToken(ctx context.Context, accessToken string) (User, error)
}
