package carrier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by a carrier whose credentials are absent.
// The chain treats it as "try the next one".
var ErrNotConfigured = errors.New("carrier not configured")

// Recipient is the delivery target for one message.
type Recipient struct {
	Name  string
	Phone string
	// CallMeBotKey is the recipient's personal API key. Only CallMeBot uses
	// per-recipient keys; the other carriers authenticate account-wide.
	CallMeBotKey string
}

// Carrier delivers a WhatsApp text message. Implementations return the raw
// provider response (or reference id) for the delivery log.
type Carrier interface {
	Name() string
	Send(ctx context.Context, to Recipient, text string) (string, error)
}
