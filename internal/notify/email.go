package notify

import (
	"context"
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// EmailSender delivers a message to an email address.
type EmailSender interface {
	SendEmail(ctx context.Context, email, message string) error
}

// SMTPSender sends OTP mail over SMTP. In dry-run mode it logs instead of
// dialing, so local flows work without an SMTP server.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	dryRun bool
}

// NewSMTPSender creates a new SMTP email sender
func NewSMTPSender(host string, port int, user, password, from string, dryRun bool) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
		dryRun: dryRun,
	}
}

// SendEmail sends the verification message to the address.
func (s *SMTPSender) SendEmail(ctx context.Context, email, message string) error {
	if s.dryRun {
		log.Printf("[email][dry-run] to=%s", email)
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Your verification code")

	body := fmt.Sprintf(`
		<h3>Confirm your registration</h3>
		<p>%s</p>
		<p>The code expires in a few minutes. If you did not request it, you can ignore this email.</p>
	`, message)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}
