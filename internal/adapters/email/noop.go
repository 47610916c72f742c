package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// NoopSender logs messages instead of delivering them.
// Used when no provider key is configured.
type NoopSender struct {
	seq atomic.Int64
}

// Compile-time check that NoopSender implements Sender.
var _ Sender = (*NoopSender)(nil)

// NewNoopSender creates a NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs msg and returns a synthetic receipt.
func (s *NoopSender) Send(_ context.Context, msg Message) (Receipt, error) {
	n := s.seq.Add(1)
	slog.Info("email_event", "event", "suppressed", "category", msg.Category, "subject", msg.Subject, "recipients", len(msg.To))
	return Receipt{MessageID: fmt.Sprintf("noop-%d", n), SentAt: time.Now()}, nil
}
