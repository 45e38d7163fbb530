// Package notify sends security notification mails to account owners.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

type Email struct {
	Subject string
	Body    string
	From    string
	To      []string
}

type Notifier interface {
	AccountLocked(ctx context.Context, to, name string, until time.Time) error
	PasswordChanged(ctx context.Context, to, name string, at time.Time) error
}

type Mailgun struct {
	domain  string
	apiKey  string
	apiBase string
	from    string
	timeout time.Duration

	deliver func(ctx context.Context, e *Email) error
}

func NewMailgun(domain, apiKey, apiBase, from string) *Mailgun {
	m := &Mailgun{
		domain:  domain,
		apiKey:  apiKey,
		apiBase: apiBase,
		from:    from,
		timeout: 5 * time.Second,
	}
	m.deliver = m.send
	return m
}

func (m *Mailgun) send(ctx context.Context, e *Email) error {
	mg := mailgun.NewMailgun(m.domain, m.apiKey)
	if m.apiBase != "" {
		mg.SetAPIBase(m.apiBase)
	}

	message := mailgun.NewMessage(e.From, e.Subject, e.Body, e.To...)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, _, err := mg.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun: %w", err)
	}
	return nil
}

func (m *Mailgun) AccountLocked(ctx context.Context, to, name string, until time.Time) error {
	return m.deliver(ctx, &Email{
		From:    m.from,
		To:      []string{to},
		Subject: "Your account has been temporarily locked",
		Body: fmt.Sprintf(
			"Hello %s,\n\nWe locked your account after several failed sign-in attempts. "+
				"You can try again after %s UTC.\n\nIf this was not you, change your password once the lock expires.",
			name, until.UTC().Format("2006-01-02 15:04"),
		),
	})
}

func (m *Mailgun) PasswordChanged(ctx context.Context, to, name string, at time.Time) error {
	return m.deliver(ctx, &Email{
		From:    m.from,
		To:      []string{to},
		Subject: "Your password was changed",
		Body: fmt.Sprintf(
			"Hello %s,\n\nThe password of your account was changed at %s UTC and all devices were signed out.\n\n"+
				"If you did not do this, contact support immediately.",
			name, at.UTC().Format("2006-01-02 15:04"),
		),
	})
}

type NopNotifier struct{}

func (NopNotifier) AccountLocked(context.Context, string, string, time.Time) error   { return nil }
func (NopNotifier) PasswordChanged(context.Context, string, string, time.Time) error { return nil }
