package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
)

// PlanGoal asks the planner which goal this message belongs to.
func PlanGoal(ctx context.Context, in *GraphState, planner contractx.Planner) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	plan, err := planner.Plan(ctx, contractx.PlannerRequest{
		UserMessage:   in.Text,
		MemorySummary: in.MemorySummary,
		Session:       in.Session,
		Now:           in.Now,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("session_id", in.Session.SessionID).
		Str("goal_type", plan.Goal.GoalType).
		Int("priority", plan.Goal.Priority).
		Strs("missing", plan.Goal.Missing).
		Msg("planner: goal selected")

	in.PlanResp = plan
	return in, nil
}
