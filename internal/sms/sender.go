// Package sms abstracts the outbound SMS gateway. The dispatchers depend on
// the narrow Sender interface; the Twilio-style REST client in this package
// is the production implementation, and tests substitute fakes.
package sms

import (
	"context"
	"errors"
)

// Sender delivers one SMS to one phone number and returns the provider's
// message identifier.
//
// Implementations must be safe for concurrent use. Errors should wrap
// ErrRecipientOptedOut when the provider reports that the recipient has
// revoked SMS consent (e.g., Twilio error 21610), so dispatchers can
// persist the opt-out instead of retrying.
type Sender interface {
	Send(ctx context.Context, toPhone, body string) (messageID string, err error)
}

// ErrRecipientOptedOut indicates the provider refused delivery because the
// recipient has opted out of messages from this sender.
var ErrRecipientOptedOut = errors.New("recipient has opted out")

// Func adapts a plain function to the Sender interface.
type Func func(ctx context.Context, toPhone, body string) (string, error)

// Send implements Sender.
func (f Func) Send(ctx context.Context, toPhone, body string) (string, error) {
	return f(ctx, toPhone, body)
}
