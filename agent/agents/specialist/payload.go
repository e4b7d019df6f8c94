package specialist

import (
	"encoding/json"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

// Modes tell the specialist prompt what kind of answer is expected.
const (
	modeAct      = "act"
	modeAsk      = "ask"
	modeFinalize = "finalize"
)

type goalView struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Status       statex.GoalStatus `json:"status"`
	Priority     int               `json:"priority"`
	Slots        map[string]any    `json:"slots,omitempty"`
	Missing      []string          `json:"missing,omitempty"`
	NextQuestion string            `json:"next_question,omitempty"`
	ToolCalls    int               `json:"tool_calls,omitempty"`
}

func viewGoal(g *statex.Goal) *goalView {
	if g == nil {
		return nil
	}
	return &goalView{
		ID:           g.ID,
		Type:         g.Type,
		Status:       g.Status,
		Priority:     g.Priority,
		Slots:        g.Slots,
		Missing:      g.Missing,
		NextQuestion: g.NextQuestion,
		ToolCalls:    g.ToolCalls,
	}
}

type sessionView struct {
	CustomerID       string      `json:"customer_id"`
	CustomerVerified bool        `json:"customer_verified"`
	ActiveGoalID     string      `json:"active_goal_id,omitempty"`
	GoalStack        []string    `json:"goal_stack"`
	OpenGoals        []*goalView `json:"open_goals"`
	KnownGoalTypes   []string    `json:"known_goal_types"`
}

func viewSession(st *statex.SessionState) sessionView {
	v := sessionView{KnownGoalTypes: statex.GoalTypes(), GoalStack: []string{}, OpenGoals: []*goalView{}}
	if st == nil {
		return v
	}
	v.CustomerID = st.CustomerID
	v.CustomerVerified = st.Verified
	v.ActiveGoalID = st.ActiveGoalID
	v.GoalStack = append(v.GoalStack, st.GoalStack...)
	for _, g := range st.OpenGoals() {
		v.OpenGoals = append(v.OpenGoals, viewGoal(g))
	}
	return v
}

type plannerPayload struct {
	UserMessage   string      `json:"user_message"`
	MemorySummary string      `json:"memory_summary,omitempty"`
	Session       sessionView `json:"session"`
	Now           string      `json:"now"`
}

type specialistPayload struct {
	Mode          string                 `json:"mode"`
	UserMessage   string                 `json:"user_message"`
	CustomerID    string                 `json:"customer_id,omitempty"`
	MemorySummary string                 `json:"memory_summary,omitempty"`
	ActiveGoal    *goalView              `json:"active_goal"`
	ToolResults   []contractx.ToolResult `json:"tool_results,omitempty"`
}

func newSpecialistPayload(mode string, req contractx.SpecialistRequest) specialistPayload {
	return specialistPayload{
		Mode:          mode,
		UserMessage:   req.UserMessage,
		CustomerID:    req.CustomerID,
		MemorySummary: req.MemorySummary,
		ActiveGoal:    viewGoal(req.ActiveGoal),
		ToolResults:   req.ToolResults,
	}
}

func formatNow(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

// templateInput renders v as the single template variable the prompts read.
func templateInput(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal model payload: %v", contractx.ErrValidation, err)
	}
	return map[string]any{"input": string(raw)}, nil
}
