package mailer

// Service delivers host-facing email notifications.
type Service interface {
	Send(toEmail, toName, subject, text, html string) (string, error)
	SendDispatchDigest(toEmail, toName, eventTitle string, sent, skipped, failed int, failureReason string) error
}
