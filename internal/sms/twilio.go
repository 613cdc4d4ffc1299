// Package sms – Twilio client
//
// This file implements Sender against the Twilio Messages REST API using
// net/http form posts. Only the narrow slice of the API the dispatchers
// need is covered: create a message, surface the SID, and map the
// opted-out error code to ErrRecipientOptedOut.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Twilio error code returned when the recipient has replied STOP.
const twilioCodeRecipientOptedOut = 21610

// TwilioClient sends SMS through the Twilio Messages API.
type TwilioClient struct {
	// AccountSID and AuthToken authenticate API requests (HTTP basic auth).
	AccountSID string
	AuthToken  string
	// FromNumber is the verified sender number in E.164 form.
	FromNumber string

	// BaseURL overrides the API endpoint; used by tests. Defaults to the
	// public Twilio API when empty.
	BaseURL string

	// HTTPClient is the transport; a 10s-timeout client is used when nil.
	HTTPClient *http.Client
}

// NewTwilioClient constructs a TwilioClient with a sane default transport.
func NewTwilioClient(accountSID, authToken, fromNumber string) *TwilioClient {
	return &TwilioClient{
		AccountSID: accountSID,
		AuthToken:  authToken,
		FromNumber: fromNumber,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// twilioMessage is the subset of the Messages API response we read.
type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts one message and returns the provider SID.
//
// Provider-reported failures (invalid number, unverified sender, recipient
// opt-out) surface as errors; the opt-out case wraps ErrRecipientOptedOut.
func (c *TwilioClient) Send(ctx context.Context, toPhone, body string) (string, error) {
	base := c.BaseURL
	if base == "" {
		base = "https://api.twilio.com"
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(base, "/"), c.AccountSID)

	form := url.Values{}
	form.Set("To", toPhone)
	form.Set("From", c.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var msg twilioMessage
	if jerr := json.Unmarshal(raw, &msg); jerr != nil && resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio: status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	if resp.StatusCode >= 300 {
		if msg.Code == twilioCodeRecipientOptedOut {
			return "", fmt.Errorf("twilio code %d: %w", msg.Code, ErrRecipientOptedOut)
		}
		return "", fmt.Errorf("twilio: status %d code %d: %s", resp.StatusCode, msg.Code, msg.Message)
	}
	return msg.SID, nil
}

// truncateBody keeps provider error bodies short enough for logs.
func truncateBody(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "…"
}
