package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/nyashahama/payment-reminder-backend/internal/duedate"
)

// ErrNotConfigured is returned by send attempts when RESEND_API_KEY is
// absent. The run itself must keep working — only the send step fails.
var ErrNotConfigured = errors.New("email: RESEND_API_KEY is not configured")

// resendClient is the concrete Sender backed by the Resend API.
type resendClient struct {
	apiKey     string
	fromAddr   string // e.g. "noreply@yourdomain.com"
	fromName   string // e.g. "Payment Tracker"
	endpoint   string // overridden in tests
	httpClient *http.Client
}

// NewResendClient returns a Sender that delivers email via Resend. An empty
// apiKey yields a client whose sends fail with ErrNotConfigured.
func NewResendClient(apiKey, fromAddr, fromName string) Sender {
	return &resendClient{
		apiKey:   apiKey,
		fromAddr: fromAddr,
		fromName: fromName,
		endpoint: "https://api.resend.com/emails",
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ─── RESEND API SHAPES ────────────────────────────────────────────────────────

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Name       string `json:"name"`
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	} `json:"error"`
}

// ─── SENDER IMPLEMENTATION ────────────────────────────────────────────────────

// SendPaymentReminder renders and sends the aggregated due-today email.
func (c *resendClient) SendPaymentReminder(ctx context.Context, p ReminderParams) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	total := 0.0
	for _, pay := range p.Payments {
		total += pay.Amount
	}

	noun := "Payment"
	if len(p.Payments) > 1 {
		noun = fmt.Sprintf("%d Payments", len(p.Payments))
	}
	subject := fmt.Sprintf("%s Due Today - %s", noun, formatAmount(total))

	html := reminderHTML(p.Payments, total)

	return c.send(ctx, p.To, subject, html)
}

// ─── HTTP SEND ────────────────────────────────────────────────────────────────

func (c *resendClient) send(ctx context.Context, to, subject, html string) (string, error) {
	from := fmt.Sprintf("%s <%s>", c.fromName, c.fromAddr)

	reqBody := resendRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("email: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("email: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("email: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("email: read response: %w", err)
	}

	var parsed resendResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("email: unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("email: Resend error %s: %s", parsed.Error.Name, parsed.Error.Message)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("email: unexpected status %d: %.200s", resp.StatusCode, string(respBytes))
	}

	return parsed.ID, nil
}

// ─── FORMATTING ──────────────────────────────────────────────────────────────

// formatAmount renders a currency amount with two decimals, rounding half up
// on the cent value of the float64 as given. The rule is fixed here: the
// binary representation decides borderline halves, so e.g. 10.005 + 20 (which
// is slightly below 30.005 in float64) renders as $30.00.
func formatAmount(v float64) string {
	return fmt.Sprintf("$%.2f", math.Round(v*100)/100)
}

// ─── HTML TEMPLATE ────────────────────────────────────────────────────────────

func reminderHTML(payments []ReminderPayment, total float64) string {
	plural := ""
	if len(payments) > 1 {
		plural = "s"
	}

	var details strings.Builder
	for _, p := range payments {
		details.WriteString(fmt.Sprintf(`
  <div style="border: 1px solid #e0e0e0; border-radius: 8px; padding: 15px; margin-bottom: 15px; background: #fafafa;">
    <div style="font-weight: bold; font-size: 18px; color: #2c3e50; margin-bottom: 5px;">%s</div>
    <div style="font-size: 24px; font-weight: bold; color: #dc3545; margin-bottom: 10px;">%s</div>
    <div style="color: #666; font-size: 14px;">
      <div><strong>Due Date:</strong> %s</div>
      <div><strong>Agreement Day:</strong> %d%s of each month</div>`,
			p.CompanyName,
			formatAmount(p.Amount),
			p.DueDate.Format("02/01/2006"),
			p.AgreementDay, duedate.Ordinal(p.AgreementDay),
		))
		if p.DelayDays > 0 {
			details.WriteString(fmt.Sprintf(`
      <div><strong>Payment Delay:</strong> %d days</div>`, p.DelayDays))
		}
		details.WriteString(`
    </div>
  </div>`)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 24px;">
  <h2 style="margin-bottom: 8px;">Payment%s Due Today</h2>
  <p>You have %d payment%s due today.</p>
  <div style="background: #f8f9fa; border-radius: 8px; padding: 20px; margin-bottom: 25px; text-align: center;">
    <div style="font-size: 32px; font-weight: bold; color: #dc3545;">%s</div>
    <div style="color: #666; font-size: 16px;">Total amount due from %d payment%s</div>
  </div>
  <h3 style="color: #2c3e50; border-bottom: 2px solid #eee; padding-bottom: 10px;">Payment Details</h3>
  %s
  <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 32px 0;">
  <p style="color: #9ca3af; font-size: 12px;">
    This is an automated reminder from your payment tracking system.
    Please ensure these payments are processed today to avoid any delays.
  </p>
</body>
</html>`,
		plural, len(payments), plural,
		formatAmount(total), len(payments), plural,
		details.String(),
	)
}
