// Package notify delivers plain-text operator notifications. Delivery is
// best-effort: callers get a Status back, never an error.
package notify

import (
	"context"
	"log/slog"
)

// Status is the outcome of a delivery attempt.
type Status string

const (
	StatusOK           Status = "ok"
	StatusAuthFailure  Status = "auth_failure"
	StatusBadRecipient Status = "bad_recipient"
	StatusTransient    Status = "transient_failure"
	StatusDisabled     Status = "disabled"
)

// Delivered reports whether the message reached the transport.
func (s Status) Delivered() bool { return s == StatusOK }

// Messenger sends a text message to the configured recipient.
type Messenger interface {
	Send(ctx context.Context, text string) Status
}

// Compile-time interface check.
var _ Messenger = (*NopMessenger)(nil)

// NopMessenger is used when messaging is disabled. It only logs.
type NopMessenger struct {
	log *slog.Logger
}

// NewNopMessenger creates a NopMessenger logging at debug level to log.
func NewNopMessenger(log *slog.Logger) *NopMessenger {
	if log == nil {
		log = slog.Default()
	}
	return &NopMessenger{log: log}
}

// Send discards text and reports StatusDisabled.
func (m *NopMessenger) Send(_ context.Context, text string) Status {
	m.log.Debug("messaging disabled, notification not sent", "chars", len(text))
	return StatusDisabled
}
