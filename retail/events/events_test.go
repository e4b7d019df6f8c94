package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeKafkaWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaPublisherKeysByEntity(t *testing.T) {
	fk := &fakeKafkaWriter{}
	p := NewKafkaPublisherWith(fk)
	at := time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(),
		Event{Type: OrderCreated, EntityID: "ord_1", OccurredAt: at, Payload: map[string]string{"status": "pending"}},
		Event{Type: RefundCreated, EntityID: "refund_1", OccurredAt: at},
	)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fk.msgs) != 2 {
		t.Fatalf("want 2 msgs, got %d", len(fk.msgs))
	}
	if string(fk.msgs[0].Key) != "ord_1" || string(fk.msgs[0].Headers[0].Value) != "order.created" {
		t.Fatalf("unexpected message: %+v", fk.msgs[0])
	}

	var decoded Event
	if err := json.Unmarshal(fk.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != OrderCreated || decoded.EntityID != "ord_1" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestKafkaPublisherPropagatesErrors(t *testing.T) {
	p := NewKafkaPublisherWith(&fakeKafkaWriter{fail: true})
	if err := p.Publish(context.Background(), Event{Type: OrderCreated, EntityID: "ord_1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewHonoursEnabled(t *testing.T) {
	if _, ok := New(Config{}).(NopPublisher); !ok {
		t.Fatal("disabled config must yield NopPublisher")
	}
	if _, ok := New(Config{Enabled: true, Brokers: "a:9092, b:9092", Topic: "t"}).(*KafkaPublisher); !ok {
		t.Fatal("enabled config must yield KafkaPublisher")
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_ = r.Publish(context.Background(), Event{Type: TicketUpdated}, Event{Type: EscalationCreated})
	types := r.Types()
	if len(types) != 2 || types[1] != EscalationCreated {
		t.Fatalf("unexpected types: %v", types)
	}
}
