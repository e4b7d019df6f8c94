package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Message)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: specialist returned empty message", contractx.ErrValidation)
	}

	out := GraphOutput{Reply: reply}
	if g := in.ActiveGoal; g != nil {
		out.GoalID = g.ID
		out.GoalType = g.Type
		out.GoalStatus = string(g.Status)
	}
	for _, r := range in.ToolResults {
		out.ToolCalls = append(out.ToolCalls, r.Tool)
	}
	return out, nil
}
