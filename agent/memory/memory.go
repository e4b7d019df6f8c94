package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultKeyPrefix  = "corecraft:memory:"
	DefaultMaxEntries = 12
	DefaultTTL        = 90 * 24 * time.Hour
)

type Config struct {
	KeyPrefix  string        `envconfig:"KEY_PREFIX" split_words:"true" default:"corecraft:memory:"`
	MaxEntries int           `envconfig:"MAX_ENTRIES" split_words:"true" default:"12"`
	TTL        time.Duration `envconfig:"TTL" split_words:"true" default:"2160h"`
}

// Summarizer folds a list of memory notes into one note.
type Summarizer interface {
	Summarize(ctx context.Context, entries []string) (string, error)
}

type redisClient interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisStore keeps per-customer memory notes in a Redis list. When the list
// outgrows MaxEntries it is compacted into a single summary note, or trimmed
// to the newest notes when no summarizer is configured.
type RedisStore struct {
	client     redisClient
	summarizer Summarizer
	cfg        Config
}

func NewRedisStore(client redisClient, summarizer Summarizer, cfg Config) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.TTL < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return &RedisStore{client: client, summarizer: summarizer, cfg: cfg}, nil
}

func (s *RedisStore) key(customerID string) string {
	return s.cfg.KeyPrefix + customerID
}

// ReadSummary returns the customer's notes oldest first, one per line.
// Anonymous chats have no memory.
func (s *RedisStore) ReadSummary(ctx context.Context, customerID string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", nil
	}
	entries, err := s.client.LRange(ctx, s.key(customerID), 0, -1).Result()
	if err != nil {
		return "", fmt.Errorf("memory: read %s: %w", customerID, err)
	}
	return strings.Join(entries, "\n"), nil
}

func (s *RedisStore) WriteSummary(ctx context.Context, customerID string, update string) error {
	customerID = strings.TrimSpace(customerID)
	update = strings.TrimSpace(update)
	if customerID == "" || update == "" {
		return nil
	}
	key := s.key(customerID)

	n, err := s.client.RPush(ctx, key, update).Result()
	if err != nil {
		return fmt.Errorf("memory: append %s: %w", customerID, err)
	}
	if s.cfg.TTL > 0 {
		if err := s.client.Expire(ctx, key, s.cfg.TTL).Err(); err != nil {
			return fmt.Errorf("memory: expire %s: %w", customerID, err)
		}
	}
	if n <= int64(s.cfg.MaxEntries) {
		return nil
	}
	return s.compact(ctx, customerID, key)
}

func (s *RedisStore) compact(ctx context.Context, customerID, key string) error {
	if s.summarizer != nil {
		entries, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("memory: read %s: %w", customerID, err)
		}
		summary, err := s.summarizer.Summarize(ctx, entries)
		if err == nil && strings.TrimSpace(summary) != "" {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return fmt.Errorf("memory: reset %s: %w", customerID, err)
			}
			if err := s.client.RPush(ctx, key, strings.TrimSpace(summary)).Err(); err != nil {
				return fmt.Errorf("memory: store summary %s: %w", customerID, err)
			}
			log.Debug().Str("customer_id", customerID).Int("entries", len(entries)).Msg("memory: compacted")
			return nil
		}
		log.Warn().Err(err).Str("customer_id", customerID).Msg("memory: summarize failed, trimming instead")
	}
	if err := s.client.LTrim(ctx, key, int64(-s.cfg.MaxEntries), -1).Err(); err != nil {
		return fmt.Errorf("memory: trim %s: %w", customerID, err)
	}
	return nil
}

// Noop discards writes and reads nothing.
type Noop struct{}

func (Noop) ReadSummary(context.Context, string) (string, error) { return "", nil }
func (Noop) WriteSummary(context.Context, string, string) error  { return nil }
