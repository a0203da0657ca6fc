package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, resetURL string) error
}

type SMTPMailer struct {
	host     string
	port     int
	user     string
	pass     string
	from     string
	startTLS bool
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	StartTLS bool
}

// NewSMTPMailer returns nil when the config is incomplete, which makes the
// service fall back to printing codes on stdout for local development.
func NewSMTPMailer(cfg SMTPConfig) Mailer {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 || strings.TrimSpace(cfg.From) == "" {
		return nil
	}
	return &SMTPMailer{
		host:     strings.TrimSpace(cfg.Host),
		port:     cfg.Port,
		user:     strings.TrimSpace(cfg.User),
		pass:     cfg.Pass,
		from:     strings.TrimSpace(cfg.From),
		startTLS: cfg.StartTLS,
	}
}

func (m *SMTPMailer) SendOTP(ctx context.Context, email, code string) error {
	_ = ctx
	subject := "Your ExamHub verification code"
	body := fmt.Sprintf("Your verification code is: %s\nIt expires in 5 minutes. Do not share this code.", code)
	if err := m.send(email, subject, body); err != nil {
		return fmt.Errorf("smtp send otp: %w", err)
	}
	return nil
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, email, resetURL string) error {
	_ = ctx
	subject := "ExamHub password reset"
	body := fmt.Sprintf("A password reset was requested for your account.\nReset link (valid 30 minutes): %s\nIf you did not ask for this, ignore this email.", resetURL)
	if err := m.send(email, subject, body); err != nil {
		return fmt.Errorf("smtp send reset: %w", err)
	}
	return nil
}

func (m *SMTPMailer) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	msg := "From: " + m.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
		body + "\r\n"

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	if m.startTLS {
		return m.sendStartTLS(addr, auth, to, []byte(msg))
	}
	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg))
}

// sendStartTLS requires the server to upgrade the connection before any
// credentials or message content go over the wire. smtp.SendMail only
// upgrades opportunistically, so the enforced path drives the client by
// hand.
func (m *SMTPMailer) sendStartTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("server %s does not support STARTTLS", m.host)
	}
	if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
		return err
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(m.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
