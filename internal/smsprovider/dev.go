package smsprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

// DevSender logs outbound messages instead of calling the carrier. Used in
// development and tests.
type DevSender struct{}

func NewDevSender() *DevSender {
	return &DevSender{}
}

func (s *DevSender) Send(ctx context.Context, toPhoneE164, body string) (*SendResult, error) {
	logger.InfoContext(ctx, "DEV SMS (not sent)", "to", toPhoneE164, "body", body)
	return &SendResult{
		ProviderID: fmt.Sprintf("dev-%d", time.Now().UnixNano()),
		Status:     "queued",
	}, nil
}

// DevPushSender logs push notifications instead of delivering them.
type DevPushSender struct{}

func NewDevPushSender() *DevPushSender {
	return &DevPushSender{}
}

func (s *DevPushSender) Push(ctx context.Context, userID, title, body string) error {
	logger.InfoContext(ctx, "DEV push (not sent)", "user_id", userID, "title", title, "body", body)
	return nil
}
