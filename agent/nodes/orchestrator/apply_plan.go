package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

func ApplyPlan(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	activeGoal, err := applyPlan(in.Session, in.PlanResp, in.Now)
	if err != nil {
		return nil, err
	}
	if activeGoal == nil {
		return nil, ErrNoActiveGoal
	}

	in.ActiveGoal = activeGoal
	return in, nil
}

// applyPlan merges the planner's goal patch into the session. A new goal with
// higher priority than the active one suspends it; a lower priority goal is
// queued behind it.
func applyPlan(
	st *statex.SessionState,
	plan contractx.PlannerResponse,
	now time.Time,
) (*statex.Goal, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: session state is nil", contractx.ErrValidation)
	}

	goalType := strings.TrimSpace(plan.Goal.GoalType)
	if !statex.SupportedGoalType(goalType) {
		return nil, fmt.Errorf("%w: unsupported goal type=%q", contractx.ErrValidation, goalType)
	}
	plan.Goal.GoalType = goalType

	targetGoal, created, err := findOrCreateGoal(st, plan.Goal, now)
	if err != nil {
		return nil, err
	}

	if plan.Goal.Priority > 0 {
		targetGoal.Priority = plan.Goal.Priority
	} else if targetGoal.Priority <= 0 {
		targetGoal.Priority = statex.DefaultPriority(goalType)
	}
	targetGoal.Type = goalType

	for k, v := range plan.Goal.SlotsPatch {
		targetGoal.SetSlot(k, v)
	}
	targetGoal.SetMissing(plan.Goal.Missing, plan.Goal.NextQuestion)
	targetGoal.UpdatedAt = now.UTC()

	current := st.ActiveGoal()
	switch {
	case current == nil || current.IsDone():
		if err := st.SuspendAndActivate(targetGoal.ID, now); err != nil {
			return nil, err
		}
	case shouldInterleave(current, targetGoal):
		if err := st.SuspendAndActivate(targetGoal.ID, now); err != nil {
			return nil, err
		}
	case created:
		if err := st.QueueGoal(targetGoal.ID, now); err != nil {
			return nil, err
		}
	}

	st.Touch(now)
	return st.ActiveGoal(), nil
}

func findOrCreateGoal(
	st *statex.SessionState,
	patch contractx.GoalPatch,
	now time.Time,
) (*statex.Goal, bool, error) {
	if st == nil {
		return nil, false, fmt.Errorf("%w: nil state", contractx.ErrValidation)
	}
	st.EnsureGoalsMap()

	if goalID := strings.TrimSpace(patch.GoalID); goalID != "" {
		if g, ok := st.GetGoal(goalID); ok && !g.IsDone() {
			return g, false, nil
		}
	}

	// One open goal per type.
	for _, g := range st.OpenGoals() {
		if g.Type == patch.GoalType {
			return g, false, nil
		}
	}
	if active := st.ActiveGoal(); active != nil && active.Type == patch.GoalType && !active.IsDone() {
		return active, false, nil
	}

	goalID := newGoalID(patch.GoalType, now)
	if _, taken := st.GetGoal(goalID); taken {
		goalID = fmt.Sprintf("%s_%d", goalID, len(st.Goals))
	}
	g := statex.CreateGoal(goalID, patch.GoalType, patch.Priority, now)
	if err := st.AddGoal(g); err != nil {
		return nil, false, err
	}
	return g, true, nil
}

func newGoalID(goalType string, now time.Time) string {
	safeType := strings.ReplaceAll(strings.TrimSpace(goalType), ".", "_")
	if safeType == "" {
		safeType = "goal"
	}
	return fmt.Sprintf("%s_%d", safeType, now.UnixNano())
}
