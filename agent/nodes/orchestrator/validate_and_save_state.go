package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

// ValidateAndSaveState is the last write of a turn. A session must pass its
// goal checks, and a verified session must name the customer it was verified
// for, before anything is persisted.
func ValidateAndSaveState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	st := in.Session

	if st.Verified && st.CustomerID == "" {
		return nil, fmt.Errorf("%w: session %s is verified without a customer", contractx.ErrValidation, st.SessionID)
	}
	st.Touch(in.Now)
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save session %s: %w", st.SessionID, err)
	}

	log.Debug().
		Str("session_id", st.SessionID).
		Str("customer_id", st.CustomerID).
		Str("active_goal_id", st.ActiveGoalID).
		Int("open_goals", len(st.OpenGoals())).
		Msg("orchestrator: session saved")
	return in, nil
}
