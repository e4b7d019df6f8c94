package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/corecraft-support/agent/agents/orchestrator"
	specialistx "github.com/tanpawarit/corecraft-support/agent/agents/specialist"
	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	llmx "github.com/tanpawarit/corecraft-support/agent/llm"
	memoryx "github.com/tanpawarit/corecraft-support/agent/memory"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
	toolx "github.com/tanpawarit/corecraft-support/agent/tool"
	configx "github.com/tanpawarit/corecraft-support/pkg/config"
	metricsx "github.com/tanpawarit/corecraft-support/pkg/metrics"
	openrouterx "github.com/tanpawarit/corecraft-support/pkg/openrouter"
	qstashx "github.com/tanpawarit/corecraft-support/pkg/qstash"
	eventx "github.com/tanpawarit/corecraft-support/retail/events"
	notifyx "github.com/tanpawarit/corecraft-support/retail/notify"
	policyx "github.com/tanpawarit/corecraft-support/retail/policy"
	servicex "github.com/tanpawarit/corecraft-support/retail/service"
	storex "github.com/tanpawarit/corecraft-support/retail/store"
)

// AppConfig selects backends. Read with the APP prefix.
type AppConfig struct {
	StoreBackend  string        `split_words:"true" default:"memory"`
	StateBackend  string        `split_words:"true" default:"memory"`
	MemoryBackend string        `split_words:"true" default:"none"`
	PolicyFile    string        `split_words:"true"`
	FixtureFile   string        `split_words:"true"`
	WorkspaceID   string        `split_words:"true" default:"corecraft"`
	ChannelType   string        `split_words:"true" default:"chat"`
	MaxToolRounds int           `split_words:"true" default:"4"`
	SessionTTL    time.Duration `split_words:"true" default:"24h"`
}

// RedisConfig is read with the REDIS prefix.
type RedisConfig struct {
	Addr     string `split_words:"true" default:"localhost:6379"`
	Password string `split_words:"true"`
	DB       int    `split_words:"true" default:"0"`
}

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	cfg      AppConfig
	metrics  *metricsx.Registry
	store    storex.Store
	service  *servicex.Service
	catalog  *toolx.Catalog
	verifier *qstashx.Client
	rdb      *redis.Client
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("cli: close failed")
		}
	}
}

func loadAppConfig() (AppConfig, error) {
	cfg, err := configx.New[AppConfig]("APP")
	if err != nil {
		return AppConfig{}, fmt.Errorf("load APP config: %w", err)
	}
	return *cfg, nil
}

// openStore opens the retail store. The memory backend is seeded with the
// fixture file or the embedded demo data.
func openStore(ctx context.Context, cfg AppConfig) (storex.Store, func() error, error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case "memory", "":
		st := storex.NewMemoryStore()
		fx, err := loadFixture(cfg.FixtureFile)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Seed(ctx, fx); err != nil {
			return nil, nil, fmt.Errorf("seed memory store: %w", err)
		}
		return st, func() error { return nil }, nil
	case "postgres":
		pg, db, err := openPostgres()
		if err != nil {
			return nil, nil, err
		}
		return pg, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openPostgres() (*storex.PostgresStore, io.Closer, error) {
	dbCfg, err := configx.New[storex.Config]("DATABASE")
	if err != nil {
		return nil, nil, fmt.Errorf("load DATABASE config: %w", err)
	}
	db, err := storex.Open(*dbCfg)
	if err != nil {
		return nil, nil, err
	}
	return storex.NewPostgresStore(db), db, nil
}

func loadFixture(path string) (*storex.Fixture, error) {
	if strings.TrimSpace(path) == "" {
		return storex.DefaultFixture()
	}
	return storex.LoadFixtureFile(path)
}

// newApp wires the retail service and the tool catalog. The chat agent is
// built separately because it needs LLM credentials.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadAppConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, metrics: metricsx.NewRegistry()}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	rules, err := policyx.Load(cfg.PolicyFile)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load policy rules: %w", err)
	}
	rules.OnDeny(func(op string, d policyx.Denial) {
		a.metrics.ObservePolicyDenial(op, d.Rule)
	})

	evCfg, err := configx.New[eventx.Config]("KAFKA")
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load KAFKA config: %w", err)
	}
	publisher := eventx.New(*evCfg)
	if c, ok := publisher.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	notifier, err := a.newNotifier()
	if err != nil {
		a.close()
		return nil, err
	}

	svc, err := servicex.New(st, rules, publisher, notifier, servicex.Config{})
	if err != nil {
		a.close()
		return nil, err
	}
	a.service = svc

	catalog, err := toolx.NewCatalog(svc, toolx.WithMetrics(a.metrics))
	if err != nil {
		a.close()
		return nil, err
	}
	a.catalog = catalog
	return a, nil
}

// newNotifier returns nil when notifications are disabled, which makes the
// service drop them.
func (a *app) newNotifier() (servicex.Notifier, error) {
	nCfg, err := configx.New[notifyx.Config]("NOTIFY")
	if err != nil {
		return nil, fmt.Errorf("load NOTIFY config: %w", err)
	}
	if !nCfg.Enabled {
		return nil, nil
	}
	qCfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return nil, fmt.Errorf("load QSTASH config: %w", err)
	}
	client, err := qstashx.NewClient(*qCfg)
	if err != nil {
		return nil, err
	}
	a.verifier = client
	return notifyx.NewQueueNotifier(client, nCfg.Destination)
}

// newOrchestrator builds the LLM agents, the session store and customer memory.
func (a *app) newOrchestrator(ctx context.Context) (*orchestratorx.Orchestrator, error) {
	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return nil, fmt.Errorf("load LLM config: %w", err)
	}
	registry, err := specialistx.NewRegistry(ctx, *llmCfg, a.catalog)
	if err != nil {
		return nil, err
	}

	sessions, err := a.newStateStore()
	if err != nil {
		return nil, err
	}
	memory, err := a.newMemoryStore(*llmCfg)
	if err != nil {
		return nil, err
	}

	return orchestratorx.New(sessions, registry, a.catalog, memory, orchestratorx.Config{
		WorkspaceID:   a.cfg.WorkspaceID,
		ChannelType:   a.cfg.ChannelType,
		MaxToolRounds: a.cfg.MaxToolRounds,
		Metrics:       a.metrics,
	})
}

func (a *app) redisClient() (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rCfg, err := configx.New[RedisConfig]("REDIS")
	if err != nil {
		return nil, fmt.Errorf("load REDIS config: %w", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rCfg.Addr,
		Password: rCfg.Password,
		DB:       rCfg.DB,
	})
	a.rdb = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func (a *app) newStateStore() (statex.Store, error) {
	switch strings.ToLower(a.cfg.StateBackend) {
	case "memory", "":
		return statex.NewMemoryStore(), nil
	case "redis":
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return statex.NewRedisStore(client, statex.DefaultKeyPrefix, a.cfg.SessionTTL)
	case "upstash":
		uCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, fmt.Errorf("load UPSTASH_REDIS config: %w", err)
		}
		return statex.NewUpstashRedisStore(*uCfg, statex.WithTTL(a.cfg.SessionTTL))
	default:
		return nil, fmt.Errorf("unknown state backend %q", a.cfg.StateBackend)
	}
}

func (a *app) newMemoryStore(llmCfg llmx.Config) (contractx.MemoryStore, error) {
	switch strings.ToLower(a.cfg.MemoryBackend) {
	case "none", "":
		return memoryx.Noop{}, nil
	case "redis":
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		mCfg, err := configx.New[memoryx.Config]("MEMORY")
		if err != nil {
			return nil, fmt.Errorf("load MEMORY config: %w", err)
		}
		orCfg := llmCfg.For(contractx.AgentTypeOrchestrator)
		var summarizer memoryx.Summarizer
		if llm := openrouterx.NewClient(orCfg); llm != nil {
			s, err := memoryx.NewChatSummarizer(llm, orCfg.Model)
			if err != nil {
				return nil, err
			}
			summarizer = s
		}
		return memoryx.NewRedisStore(client, summarizer, *mCfg)
	default:
		return nil, errors.New("unknown memory backend " + a.cfg.MemoryBackend)
	}
}
