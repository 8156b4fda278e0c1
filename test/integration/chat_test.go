package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/unihealth/careportal/internal/platform/chat"
	"github.com/unihealth/careportal/internal/session"
)

func TestChatDeliveryBetweenUsers(t *testing.T) {
	p := newPortal(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan chat.Message, 4)

	recipient, err := chat.Dial(ctx, p.wsURL(), session.New("d2", "sandbox-token"), func(msg chat.Message) {
		received <- msg
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial recipient: %v", err)
	}
	defer recipient.Close()

	sender, err := chat.Dial(ctx, p.wsURL(), session.New("d1", "sandbox-token"), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial sender: %v", err)
	}
	defer sender.Close()

	// the recipient's subscribe frame races the send; give the hub a beat
	time.Sleep(100 * time.Millisecond)

	if err := sender.Send("d2", "patient EMP001 cleared for follow-up"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sender.Send("d2", "claim filed"); err != nil {
		t.Fatalf("send second: %v", err)
	}

	for _, want := range []string{"patient EMP001 cleared for follow-up", "claim filed"} {
		select {
		case msg := <-received:
			if msg.Body != want {
				t.Fatalf("expected body %q, got %q", want, msg.Body)
			}
			if msg.From != "d1" || msg.To != "d2" {
				t.Fatalf("unexpected routing: %+v", msg)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for delivery")
		}
	}
}

func TestChatCloseIsIdempotent(t *testing.T) {
	p := newPortal(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := chat.Dial(ctx, p.wsURL(), session.New("d1", "sandbox-token"), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !client.Closed() {
		t.Fatal("expected client to report closed")
	}
}
