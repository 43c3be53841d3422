// Package smsprovider wraps the downstream SMS carrier behind a small send
// interface with interchangeable dev and HTTP implementations.
package smsprovider

import "context"

// SendResult is the carrier's acknowledgement of a submitted message.
type SendResult struct {
	ProviderID string
	Status     string
}

// Sender submits one SMS. Implementations may return transient network errors
// or permanent rejections; callers treat both as per-recipient failures.
type Sender interface {
	Send(ctx context.Context, toPhoneE164, body string) (*SendResult, error)
}

// PushSender delivers an in-app push notification. Push delivery is
// best-effort; failures are logged, not recorded per-recipient.
type PushSender interface {
	Push(ctx context.Context, userID, title, body string) error
}
