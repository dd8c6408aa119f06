package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/andresuchdata/po-tool/internal/config"
	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

// Notifier alerts operators about failures nobody is waiting on.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

type mailNotifier struct {
	dialer *gomail.Dialer
	from   string
	to     []string
}

type noopNotifier struct{}

// NewMailNotifier sends plain-text email over SMTP. It falls back to a no-op
// notifier when mail is disabled or has no recipients.
func NewMailNotifier(cfg config.MailConfig) Notifier {
	if !cfg.Enabled || len(cfg.To) == 0 || cfg.Host == "" {
		return &noopNotifier{}
	}
	return &mailNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		to:     cfg.To,
	}
}

func NewNoopNotifier() Notifier {
	return &noopNotifier{}
}

func (n *mailNotifier) Notify(ctx context.Context, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send notification %q: %w", subject, err)
		}
		return nil
	}
}

func (n *noopNotifier) Notify(ctx context.Context, subject, body string) error {
	log.Debug().Str("subject", subject).Msg("notification skipped, mail disabled")
	return nil
}

// Message is a notification captured by Recorder.
type Message struct {
	Subject string
	Body    string
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(ctx context.Context, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Subject: subject, Body: body})
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
