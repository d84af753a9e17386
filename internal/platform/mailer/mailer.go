// Package mailer sends transactional email. Sending is fire-and-forget: a
// failed send is logged and reported as false, never retried.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/platform/config"
	"lawdesk/internal/platform/identity"
)

type Sender interface {
	Send(ctx context.Context, to, subject, html string) bool
}

// New returns an SMTP sender when a host is configured and a logging
// sender otherwise.
func New(cfg config.EmailConfig) Sender {
	if cfg.Provider == "smtp" && cfg.SMTP.Host != "" {
		return NewSMTPSender(cfg.SMTP)
	}
	return LogSender{}
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPSender struct {
	cfg      config.SMTPConfig
	sendMail sendFunc
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *SMTPSender) from() string {
	if s.cfg.FromName == "" {
		return s.cfg.FromAddress
	}
	return fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)
}

func (s *SMTPSender) message(to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.from() + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func (s *SMTPSender) Send(_ context.Context, to, subject, html string) bool {
	if strings.ContainsAny(to+subject, "\r\n") {
		log.Error().Str("to_id", identity.UserID(to)).Msg("mailer: header injection rejected")
		return false
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	if err := s.sendMail(addr, auth, s.cfg.FromAddress, []string{to}, s.message(to, subject, html)); err != nil {
		log.Error().Err(err).
			Str("to_id", identity.UserID(to)).
			Str("subject", subject).
			Msg("mailer: send failed")
		return false
	}
	return true
}

// LogSender only logs. Used when no mail transport is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, _ string) bool {
	log.Info().Str("to_id", identity.UserID(to)).Str("subject", subject).Msg("mailer: email not sent, no transport configured")
	return true
}
