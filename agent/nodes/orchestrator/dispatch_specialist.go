package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

// DefaultMaxToolRounds bounds tool calls per customer message.
const DefaultMaxToolRounds = 4

const toolVerifyCustomer = "verify_customer"

// DispatchSpecialist runs the active goal's specialist. Each round executes at
// most one requested tool and feeds every result so far back to the
// specialist. When the rounds are used up the specialist must reply from what
// it has.
func DispatchSpecialist(
	ctx context.Context,
	in *GraphState,
	models contractx.Registry,
	tools contractx.ToolGateway,
	maxRounds int,
) (*GraphState, error) {
	if in == nil || in.ActiveGoal == nil || in.Session == nil {
		return nil, ErrNoActiveGoal
	}
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}

	specialist, agentType, err := pickSpecialist(in.ActiveGoal, models)
	if err != nil {
		return nil, err
	}

	for round := 0; ; round++ {
		req := contractx.SpecialistRequest{
			UserMessage:   in.Text,
			CustomerID:    in.Session.CustomerID,
			MemorySummary: in.MemorySummary,
			ActiveGoal:    in.ActiveGoal,
			ToolResults:   in.ToolResults,
			Finalize:      round >= maxRounds,
		}
		resp, err := specialist.Run(ctx, req)
		if err != nil {
			return nil, err
		}

		if len(resp.ToolRequests) == 0 {
			in.Message = strings.TrimSpace(resp.Message)
			in.StateUpdates = resp.StateUpdates
			return in, nil
		}
		if req.Finalize {
			return nil, fmt.Errorf("%w: specialist requested tools after %d rounds", contractx.ErrSchemaViolation, maxRounds)
		}

		call := resp.ToolRequests[0]
		if extra := len(resp.ToolRequests) - 1; extra > 0 {
			log.Warn().
				Str("session_id", in.SessionID).
				Str("tool", call.Tool).
				Int("dropped", extra).
				Msg("orchestrator: executing first tool request only")
		}

		results, err := tools.Execute(ctx, agentType, []contractx.ToolRequest{call})
		if err != nil {
			return nil, fmt.Errorf("execute tool %s: %w", call.Tool, err)
		}
		for i, res := range results {
			customerID, ok := verifiedCustomer(res)
			if !ok {
				continue
			}
			if err := in.Session.BindCustomer(customerID, in.Now); err != nil {
				log.Warn().Err(err).Str("session_id", in.SessionID).Msg("orchestrator: verification for another customer ignored")
				results[i] = contractx.ToolResult{
					Tool:  res.Tool,
					Error: "this conversation is already verified for a different customer; identity was not changed",
				}
			}
		}
		in.ToolResults = append(in.ToolResults, results...)
		in.ActiveGoal.ToolCalls += len(results)
	}
}

func pickSpecialist(activeGoal *statex.Goal, models contractx.Registry) (contractx.Specialist, contractx.AgentType, error) {
	if activeGoal == nil {
		return nil, "", ErrNoActiveGoal
	}

	goalType := strings.TrimSpace(activeGoal.Type)
	switch {
	case strings.HasPrefix(goalType, "sales."):
		return models.Sales(), contractx.AgentTypeSales, nil
	case strings.HasPrefix(goalType, "support."):
		return models.Support(), contractx.AgentTypeSupport, nil
	default:
		return nil, "", fmt.Errorf("%w: unsupported goal type=%q", contractx.ErrValidation, goalType)
	}
}

// verifiedCustomer extracts the customer id from a successful verify_customer
// result. Results arrive either as the service type or as decoded JSON.
func verifiedCustomer(res contractx.ToolResult) (string, bool) {
	if res.Tool != toolVerifyCustomer || res.Error != "" {
		return "", false
	}
	switch v := res.Result.(type) {
	case interface{ VerifiedCustomer() (string, bool) }:
		return v.VerifiedCustomer()
	case map[string]any:
		ok, _ := v["validated"].(bool)
		id, _ := v["customer_id"].(string)
		return id, ok && id != ""
	default:
		return "", false
	}
}
