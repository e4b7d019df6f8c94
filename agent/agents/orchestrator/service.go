package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	memoryx "github.com/tanpawarit/corecraft-support/agent/memory"
	nodex "github.com/tanpawarit/corecraft-support/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
	metricsx "github.com/tanpawarit/corecraft-support/pkg/metrics"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
	ErrNoActiveGoal   = nodex.ErrNoActiveGoal
)

type (
	Input  = nodex.GraphInput
	Output = nodex.GraphOutput
)

type Config struct {
	WorkspaceID   string
	ChannelType   string
	MaxToolRounds int
	Metrics       *metricsx.Registry
}

type Orchestrator struct {
	store  statex.Store
	models contractx.Registry
	tools  contractx.ToolGateway
	memory contractx.MemoryStore

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	workspaceID   string
	channelType   string
	maxToolRounds int
	metrics       *metricsx.Registry

	now func() time.Time
}

func New(
	store statex.Store,
	models contractx.Registry,
	tools contractx.ToolGateway,
	memory contractx.MemoryStore,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}
	if memory == nil {
		memory = memoryx.Noop{}
	}

	workspaceID := strings.TrimSpace(cfg.WorkspaceID)
	if workspaceID == "" {
		workspaceID = "corecraft"
	}
	channelType := strings.TrimSpace(cfg.ChannelType)
	if channelType == "" {
		channelType = "chat"
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = nodex.DefaultMaxToolRounds
	}

	o := &Orchestrator{
		store:         store,
		models:        models,
		tools:         tools,
		memory:        memory,
		workspaceID:   workspaceID,
		channelType:   channelType,
		maxToolRounds: maxRounds,
		metrics:       cfg.Metrics,
		now:           time.Now,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage answers one message of an anonymous or already bound session.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID string, text string) (string, error) {
	out, err := o.Handle(ctx, Input{SessionID: sessionID, Text: text})
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// Handle runs one chat turn. CustomerID is set by authenticated channels.
func (o *Orchestrator) Handle(ctx context.Context, in Input) (out Output, err error) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.ObserveTurn(start, err)
		}
		ev := log.Info()
		if err != nil {
			ev = log.Error().Err(err)
		}
		ev.Str("session_id", in.SessionID).
			Str("goal_type", out.GoalType).
			Strs("tools", out.ToolCalls).
			Dur("elapsed", time.Since(start)).
			Msg("orchestrator: turn handled")
	}()

	return o.graphRunner.Invoke(ctx, in)
}
