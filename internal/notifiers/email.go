package notifiers

import (
	"context"
	"errors"

	"gopkg.in/gomail.v2"
)

// ErrNoRecipients is returned when Send is called without any address.
var ErrNoRecipients = errors.New("no recipients")

// Dialer delivers composed messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// NewSMTPDialer returns a dialer for the given relay. Authentication is used only when username is set.
func NewSMTPDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

// EmailNotifier sends plain-text emails through an SMTP relay.
type EmailNotifier struct {
	dialer Dialer
}

// NewEmailNotifier creates a new EmailNotifier instance.
func NewEmailNotifier(dialer Dialer) *EmailNotifier {
	return &EmailNotifier{dialer: dialer}
}

// Send composes a text/plain message and hands it to the relay.
// It returns ctx.Err() if ctx is done before the relay answers.
func (n *EmailNotifier) Send(ctx context.Context, subject, body, from string, to []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.dialer.DialAndSend(m)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
