// Package mail sends the transactional emails of the sign-up and
// password-reset flows.
package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Mailer delivers a single HTML email.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	addr   string
	auth   smtp.Auth
	from   string
	logger *logrus.Logger
}

func NewSMTPMailer(host, port, username, password, from string, logger *logrus.Logger) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		addr:   host + ":" + port,
		auth:   auth,
		from:   from,
		logger: logger,
	}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		htmlBody,
	}, "\r\n")

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{extractAddress(to)}, []byte(msg)); err != nil {
		m.logger.WithError(err).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// extractAddress pulls the bare address out of "Name <addr>" recipients.
func extractAddress(to string) string {
	if start := strings.LastIndex(to, "<"); start != -1 {
		if end := strings.LastIndex(to, ">"); end > start {
			return to[start+1 : end]
		}
	}
	return to
}

// LogMailer logs instead of sending, for development and tests.
type LogMailer struct {
	logger *logrus.Logger
}

func NewLogMailer(logger *logrus.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(to, subject, htmlBody string) error {
	m.logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info("Email suppressed (log mailer)")
	return nil
}
