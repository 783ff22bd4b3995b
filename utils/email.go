package utils

import (
	"crypto/tls"
	"errors"
	"net/smtp"

	"MsgVault/config"

	"github.com/jordan-wright/email"
)

var ErrSMTPNotConfigured = errors.New("smtp not configured")

// SendAlertMail mails an operator alert through the configured relay.
func SendAlertMail(to, subject, body string) error {
	cfg := config.AppConfig.SMTP
	if cfg.Host == "" || cfg.From == "" {
		return ErrSMTPNotConfigured
	}
	if to == "" {
		return errors.New("alert recipient missing")
	}

	msg := &email.Email{
		From:    cfg.From,
		To:      []string{to},
		Subject: "[msgvault] " + subject,
		Text:    []byte(body),
		Headers: map[string][]string{"X-Msgvault-Alert": {"reconcile"}},
	}

	addr := cfg.Host + ":" + cfg.Port
	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	tlsConfig := &tls.Config{ServerName: cfg.Host}
	switch {
	case cfg.TLS || cfg.Port == "465":
		return msg.SendWithTLS(addr, auth, tlsConfig)
	case cfg.StartTLS:
		return msg.SendWithStartTLS(addr, auth, tlsConfig)
	default:
		return msg.Send(addr, auth)
	}
}
