package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
	ErrNoActiveGoal   = errors.New("active goal is missing")
)

// GraphInput is one customer message. CustomerID is optional; an anonymous
// session binds a customer once verify_customer succeeds.
type GraphInput struct {
	SessionID  string
	CustomerID string
	Text       string
}

type GraphOutput struct {
	Reply      string
	GoalID     string
	GoalType   string
	GoalStatus string
	ToolCalls  []string
}

type GraphState struct {
	SessionID  string
	CustomerID string
	Text       string
	Now        time.Time

	Session       *statex.SessionState
	MemorySummary string
	PlanResp      contractx.PlannerResponse
	ActiveGoal    *statex.Goal

	ToolResults  []contractx.ToolResult
	Message      string
	StateUpdates contractx.StateUpdates
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID:  sessionID,
		CustomerID: strings.TrimSpace(in.CustomerID),
		Text:       text,
		Now:        nowFn().UTC(),
	}, nil
}
