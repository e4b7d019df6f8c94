package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

type plannerImpl struct {
	runner compose.Runnable[map[string]any, plannerLLMOutput]
}

type plannerLLMOutput struct {
	GoalID       string         `json:"goal_id,omitempty"`
	GoalType     string         `json:"goal_type"`
	Priority     int            `json:"priority"`
	SlotsPatch   map[string]any `json:"slots_patch,omitempty"`
	Missing      []string       `json:"missing,omitempty"`
	NextQuestion string         `json:"next_question,omitempty"`
}

func newPlanner(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*plannerImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: planner system prompt", contractx.ErrPromptMissing)
	}
	runner, err := compilePlannerGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile planner graph: %v", contractx.ErrModelInvoke, err)
	}
	return &plannerImpl{runner: runner}, nil
}

func (p *plannerImpl) Plan(ctx context.Context, req contractx.PlannerRequest) (contractx.PlannerResponse, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return contractx.PlannerResponse{}, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	input, err := templateInput(plannerPayload{
		UserMessage:   req.UserMessage,
		MemorySummary: req.MemorySummary,
		Session:       viewSession(req.Session),
		Now:           formatNow(req.Now),
	})
	if err != nil {
		return contractx.PlannerResponse{}, err
	}

	out, err := p.runner.Invoke(ctx, input)
	if err != nil {
		return contractx.PlannerResponse{}, fmt.Errorf("%w: planner invoke: %v", contractx.ErrModelInvoke, err)
	}

	resp := contractx.PlannerResponse{
		Goal: contractx.GoalPatch{
			GoalID:       strings.TrimSpace(out.GoalID),
			GoalType:     strings.TrimSpace(out.GoalType),
			Priority:     out.Priority,
			SlotsPatch:   out.SlotsPatch,
			Missing:      out.Missing,
			NextQuestion: strings.TrimSpace(out.NextQuestion),
		},
	}

	if err := normalizePlannerResponse(&resp); err != nil {
		return contractx.PlannerResponse{}, err
	}
	return resp, nil
}

// normalizePlannerResponse rejects unusable plans and fills defaults in place.
func normalizePlannerResponse(resp *contractx.PlannerResponse) error {
	goalType := strings.TrimSpace(resp.Goal.GoalType)
	if !statex.SupportedGoalType(goalType) {
		return fmt.Errorf("%w: unsupported goal_type=%q", contractx.ErrSchemaViolation, goalType)
	}
	if resp.Goal.Priority < 0 {
		return fmt.Errorf("%w: priority must be >= 0", contractx.ErrSchemaViolation)
	}
	if resp.Goal.Priority == 0 {
		resp.Goal.Priority = statex.DefaultPriority(goalType)
	}
	if resp.Goal.SlotsPatch == nil {
		resp.Goal.SlotsPatch = map[string]any{}
	}
	if len(resp.Goal.Missing) > 0 && strings.TrimSpace(resp.Goal.NextQuestion) == "" {
		return fmt.Errorf("%w: blocked goal must include next_question", contractx.ErrSchemaViolation)
	}
	if len(resp.Goal.Missing) == 0 {
		resp.Goal.NextQuestion = ""
	}
	return nil
}
