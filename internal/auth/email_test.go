package auth

import "testing"

func TestNewSMTPMailerIncompleteConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
	}{
		{name: "missing host", cfg: SMTPConfig{Port: 587, From: "noreply@examhub.test"}},
		{name: "missing port", cfg: SMTPConfig{Host: "smtp.examhub.test", From: "noreply@examhub.test"}},
		{name: "missing from", cfg: SMTPConfig{Host: "smtp.examhub.test", Port: 587}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewSMTPMailer(tc.cfg); got != nil {
				t.Fatalf("expected nil mailer for incomplete config, got %T", got)
			}
		})
	}
}

func TestNewSMTPMailerCarriesStartTLS(t *testing.T) {
	cfg := SMTPConfig{
		Host:     "smtp.examhub.test",
		Port:     587,
		User:     "mailer",
		Pass:     "secret",
		From:     "noreply@examhub.test",
		StartTLS: true,
	}

	m, ok := NewSMTPMailer(cfg).(*SMTPMailer)
	if !ok {
		t.Fatalf("expected *SMTPMailer for complete config")
	}
	if !m.startTLS {
		t.Fatalf("startTLS flag not carried into the mailer")
	}

	cfg.StartTLS = false
	m, ok = NewSMTPMailer(cfg).(*SMTPMailer)
	if !ok {
		t.Fatalf("expected *SMTPMailer for complete config")
	}
	if m.startTLS {
		t.Fatalf("startTLS should be off when the config disables it")
	}
}
