package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"lawdesk/internal/platform/config"
)

func testSender(err error) (*SMTPSender, *[]byte) {
	var sent []byte
	s := NewSMTPSender(config.SMTPConfig{Host: "mail.test", Port: 587, FromAddress: "noreply@lawdesk.test", FromName: "LawDesk"})
	s.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "mail.test:587" {
			return errors.New("unexpected addr " + addr)
		}
		sent = msg
		return err
	}
	return s, &sent
}

func TestSMTPSender_Send(t *testing.T) {
	s, sent := testSender(nil)

	if !s.Send(context.Background(), "owner@firm.com", "Hello", "<p>hi</p>") {
		t.Fatal("expected send to succeed")
	}
	msg := string(*sent)
	if !strings.Contains(msg, "From: LawDesk <noreply@lawdesk.test>\r\n") {
		t.Errorf("missing From header: %q", msg)
	}
	if !strings.Contains(msg, "Content-Type: text/html") {
		t.Errorf("missing content type: %q", msg)
	}
	if !strings.HasSuffix(msg, "<p>hi</p>\r\n") {
		t.Errorf("unexpected body: %q", msg)
	}
}

func TestSMTPSender_FailureReturnsFalse(t *testing.T) {
	s, _ := testSender(errors.New("connection refused"))
	if s.Send(context.Background(), "owner@firm.com", "Hello", "<p>hi</p>") {
		t.Error("expected false on transport error")
	}
}

func TestSMTPSender_RejectsHeaderInjection(t *testing.T) {
	s, sent := testSender(nil)
	if s.Send(context.Background(), "owner@firm.com\r\nBcc: x@evil.com", "Hello", "") {
		t.Error("expected injection to be rejected")
	}
	if *sent != nil {
		t.Error("nothing should have been sent")
	}
}

type captureSender struct {
	subject string
	html    string
}

func (c *captureSender) Send(_ context.Context, _, subject, html string) bool {
	c.subject = subject
	c.html = html
	return true
}

func TestSendWelcome_EscapesInput(t *testing.T) {
	c := &captureSender{}
	SendWelcome(context.Background(), c, "a@x.com", WelcomeData{Name: "<b>Ann</b>", Org: "Smith LLP", Plan: "professional", TrialDays: 14})

	if strings.Contains(c.html, "<b>Ann</b>") {
		t.Error("name should be escaped")
	}
	if !strings.Contains(c.html, "14-day trial") {
		t.Errorf("unexpected body: %s", c.html)
	}
}

func TestNew_FallsBackToLog(t *testing.T) {
	if _, ok := New(config.EmailConfig{Provider: "smtp"}).(LogSender); !ok {
		t.Error("expected LogSender without an SMTP host")
	}
}
