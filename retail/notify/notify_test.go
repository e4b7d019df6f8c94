package notify

import (
	"context"
	"errors"
	"testing"

	servicex "github.com/tanpawarit/corecraft-support/retail/service"
)

type fakePublisher struct {
	dest    string
	payload any
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, destination string, payload any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.dest = destination
	f.payload = payload
	return "msg_1", nil
}

func TestQueueNotifier(t *testing.T) {
	t.Parallel()

	if _, err := NewQueueNotifier(nil, "https://x"); err == nil {
		t.Fatal("expected error for nil publisher")
	}
	if _, err := NewQueueNotifier(&fakePublisher{}, " "); err == nil {
		t.Fatal("expected error for empty destination")
	}

	pub := &fakePublisher{}
	n, err := NewQueueNotifier(pub, "https://hooks.example.com/email")
	if err != nil {
		t.Fatalf("NewQueueNotifier() error = %v", err)
	}
	msg := servicex.Notification{CustomerID: "cust_1001", Email: "alice.nguyen@example.com", Subject: "hi"}
	if err := n.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if pub.dest != "https://hooks.example.com/email" {
		t.Fatalf("destination = %q", pub.dest)
	}
	if got, ok := pub.payload.(servicex.Notification); !ok || got.Subject != "hi" {
		t.Fatalf("payload = %#v", pub.payload)
	}

	if err := n.Notify(context.Background(), servicex.Notification{CustomerID: "cust_x"}); err == nil {
		t.Fatal("expected error without contact details")
	}

	pub.err = errors.New("down")
	if err := n.Notify(context.Background(), msg); !errors.Is(err, pub.err) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}
