// Package twilio implements the messaging gateway capability over the Twilio
// Messages API.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stipator/stipator/internal/alert"
)

// Client submits SMS messages through Twilio, one API call per recipient.
type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a messaging gateway client. Calls are bounded by a 15s
// timeout per recipient.
func NewClient(accountSID, authToken, fromNumber string) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    "https://api.twilio.com",
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Send delivers body to each recipient independently and reports a
// per-recipient outcome. One rejected number never blocks the rest; there is
// no batch-level failure mode.
func (c *Client) Send(ctx context.Context, recipients []string, body string) []alert.SendOutcome {
	outcomes := make([]alert.SendOutcome, len(recipients))
	for i, recipient := range recipients {
		outcomes[i] = alert.SendOutcome{
			Recipient: recipient,
			Err:       c.sendOne(ctx, recipient, body),
		}
	}
	return outcomes
}

// sendOne posts a single message to the Twilio Messages endpoint.
func (c *Client) sendOne(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr twilioError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("twilio error %d: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("twilio API error %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// twilioError is the error body returned by the Messages API.
type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
