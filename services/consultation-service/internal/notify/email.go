package notify

import (
	"context"
	"errors"
	"strings"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string `envconfig:"SMTP_HOST"`
	Port     int    `envconfig:"SMTP_PORT" default:"1025"`
	Username string `envconfig:"SMTP_USERNAME"`
	Password string `envconfig:"SMTP_PASSWORD"`
	From     string `envconfig:"SMTP_FROM" default:"no-reply@gurubook.local"`
}

// Email sends plain-text mail over SMTP. Empty credentials dial without auth,
// which is what local relays such as Mailpit expect.
type Email struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmail(cfg SMTPConfig) *Email {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@gurubook.local"
	}
	return &Email{
		dialer: gomail.NewDialer(strings.TrimSpace(cfg.Host), cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (e *Email) ProviderID() string { return "smtp" }

func (e *Email) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("email recipient missing")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	return e.dialer.DialAndSend(m)
}
