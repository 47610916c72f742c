// Package email delivers operator notifications through an external provider.
package email

import (
	"context"
	"time"
)

// Message is one email to one or more recipients.
type Message struct {
	To       []string
	From     string // overrides the sender default, e.g. "Loyalty Sync <sync@example.com>"
	Subject  string
	HTML     string
	Text     string // plain-text alternative; optional
	Category string // provider tag used to filter deliveries, e.g. "sync_alert"
}

// Receipt is the provider's acknowledgement of a Message.
type Receipt struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}
