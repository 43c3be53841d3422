package mailer

import (
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

// DevMailer prints emails to logs instead of sending them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (m *DevMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	logger.Info("DEV email (not sent)", "to", toEmail, "subject", subject, "text", text)
	return "dev-mail", nil
}

func (m *DevMailer) SendDispatchDigest(toEmail, toName, eventTitle string, sent, skipped, failed int, failureReason string) error {
	logger.Info("DEV dispatch digest (not sent)",
		"to", toEmail,
		"event", eventTitle,
		"sent", sent,
		"skipped", skipped,
		"failed", failed,
		"failure_reason", failureReason,
	)
	return nil
}
