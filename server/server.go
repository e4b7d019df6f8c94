// Package server exposes the chat orchestrator and the retail tools over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/corecraft-support/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	metricsx "github.com/tanpawarit/corecraft-support/pkg/metrics"
)

type Config struct {
	Addr         string        `split_words:"true" default:":8080"`
	ReadTimeout  time.Duration `split_words:"true" default:"15s"`
	WriteTimeout time.Duration `split_words:"true" default:"90s"`
	// StaffToken guards the direct tool routes. Empty disables them.
	StaffToken string `split_words:"true"`
	// CallbackURL is the public URL QStash calls back; checked against the signature subject.
	CallbackURL string `split_words:"true"`
}

// Chat runs one conversational turn.
type Chat interface {
	Handle(ctx context.Context, in orchestratorx.Input) (orchestratorx.Output, error)
}

// ToolRunner executes a single tool on behalf of an agent.
type ToolRunner interface {
	ExecuteOne(ctx context.Context, agentType contractx.AgentType, req contractx.ToolRequest) (contractx.ToolResult, error)
}

// SignatureVerifier checks QStash callback signatures.
type SignatureVerifier interface {
	Verify(signature string, body []byte, callbackURL string) error
}

type Server struct {
	router   *mux.Router
	chat     Chat
	tools    ToolRunner
	verifier SignatureVerifier
	metrics  *metricsx.Registry
	cfg      Config
	server   *http.Server
}

// New wires the routes. verifier may be nil, which disables the notification callback.
func New(cfg Config, chat Chat, tools ToolRunner, verifier SignatureVerifier, metrics *metricsx.Registry) (*Server, error) {
	if chat == nil {
		return nil, errors.New("chat orchestrator is required")
	}
	if tools == nil {
		return nil, errors.New("tool runner is required")
	}
	if metrics == nil {
		metrics = metricsx.NewRegistry()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{
		router:   mux.NewRouter(),
		chat:     chat,
		tools:    tools,
		verifier: verifier,
		metrics:  metrics,
		cfg:      cfg,
	}
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// Start blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("server: listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
