package notify

import (
	"context"
	"testing"

	"github.com/andresuchdata/po-tool/internal/config"
)

func TestNewMailNotifierFallsBackToNoop(t *testing.T) {
	cases := []config.MailConfig{
		{Enabled: false, Host: "smtp.local", To: []string{"ops@example.com"}},
		{Enabled: true, Host: "smtp.local"},
		{Enabled: true, To: []string{"ops@example.com"}},
	}
	for _, cfg := range cases {
		if _, ok := NewMailNotifier(cfg).(*noopNotifier); !ok {
			t.Errorf("config %+v should produce a noop notifier", cfg)
		}
	}

	n := NewMailNotifier(config.MailConfig{Enabled: true, Host: "smtp.local", Port: 25, To: []string{"ops@example.com"}})
	if _, ok := n.(*mailNotifier); !ok {
		t.Fatalf("expected mail notifier, got %T", n)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_ = r.Notify(context.Background(), "subject", "body")
	msgs := r.Messages()
	if len(msgs) != 1 || msgs[0].Subject != "subject" || msgs[0].Body != "body" {
		t.Fatalf("messages = %+v", msgs)
	}
}
