// Package notify delivers customer notifications through a message queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	servicex "github.com/tanpawarit/corecraft-support/retail/service"
)

type Config struct {
	Enabled     bool   `split_words:"true" default:"false"`
	Destination string `split_words:"true"`
}

// Publisher is satisfied by *qstash.Client.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) (string, error)
}

type QueueNotifier struct {
	pub         Publisher
	destination string
}

var _ servicex.Notifier = (*QueueNotifier)(nil)

func NewQueueNotifier(pub Publisher, destination string) (*QueueNotifier, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("notification destination is required")
	}
	return &QueueNotifier{pub: pub, destination: destination}, nil
}

func (n *QueueNotifier) Notify(ctx context.Context, msg servicex.Notification) error {
	if msg.Email == "" && msg.Phone == "" {
		return fmt.Errorf("customer %s has no contact details", msg.CustomerID)
	}
	id, err := n.pub.Publish(ctx, n.destination, msg)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	log.Info().
		Str("message_id", id).
		Str("customer_id", msg.CustomerID).
		Str("related_entity_id", msg.RelatedEntityID).
		Msg("notify: queued")
	return nil
}
