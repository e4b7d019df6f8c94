package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	eventx "github.com/tanpawarit/corecraft-support/retail/events"
	policyx "github.com/tanpawarit/corecraft-support/retail/policy"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("already exists")
)

// Notification is a customer facing message queued for delivery.
type Notification struct {
	CustomerID        string    `json:"customer_id"`
	Email             string    `json:"email,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	Channel           string    `json:"channel"`
	Subject           string    `json:"subject"`
	Message           string    `json:"message"`
	RelatedEntityType string    `json:"related_entity_type,omitempty"`
	RelatedEntityID   string    `json:"related_entity_id,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error { return nil }

type Config struct {
	// Now overrides the clock, mainly for tests and replayed conversations.
	Now func() time.Time
	// NewID generates escalation and resolution id suffixes.
	NewID func() string
}

// Service implements the retail tools on top of a Store. Business rule denials come back
// as *policy.PolicyError, lookups of unknown ids as ErrNotFound.
type Service struct {
	store    storex.Store
	rules    *policyx.Engine
	events   eventx.Publisher
	notifier Notifier

	now   func() time.Time
	newID func() string
}

func New(
	store storex.Store,
	rules *policyx.Engine,
	publisher eventx.Publisher,
	notifier Notifier,
	cfg Config,
) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if rules == nil {
		return nil, errors.New("policy engine is required")
	}
	if publisher == nil {
		publisher = eventx.NopPublisher{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	s := &Service{
		store:    store,
		rules:    rules,
		events:   publisher,
		notifier: notifier,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	return s, nil
}

func (s *Service) Now() time.Time { return s.now().UTC() }

// publish never fails the caller; the write already committed.
func (s *Service) publish(ctx context.Context, typ eventx.Type, id string, payload any) {
	err := s.events.Publish(ctx, eventx.Event{
		Type:       typ,
		EntityID:   id,
		OccurredAt: s.Now(),
		Payload:    payload,
	})
	if err != nil {
		log.Warn().Err(err).Str("event", string(typ)).Str("entity_id", id).Msg("service: publish failed")
	}
}

// hashID derives a stable id from the identifying fields of a new record.
func hashID(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return prefix + hex.EncodeToString(sum[:])[:12]
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, storex.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("%s is required", name)
	}
	return nil
}

// Timestamp accepts RFC 3339 timestamps or bare dates in tool arguments.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateTime, time.DateOnly}

func ParseTimestamp(v string) (Timestamp, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
	}
	return Timestamp{}, invalid("unrecognised timestamp %q", v)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return invalid("timestamp must be a string")
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Ptr returns nil for a nil receiver.
func (t *Timestamp) Ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

func timeRange(after, before *Timestamp) storex.TimeRange {
	return storex.TimeRange{After: after.Ptr(), Before: before.Ptr()}
}

type enum interface {
	~string
	Valid() bool
}

// checkEnum accepts the empty value so optional filters can be left unset.
func checkEnum[T enum](name string, v T) error {
	if v == "" || v.Valid() {
		return nil
	}
	return invalid("%s %q is not a valid value", name, string(v))
}
