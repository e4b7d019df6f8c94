// Package prompt embeds the system prompts of the CoreCraft planner and
// specialists.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

var (
	//go:embed template/planner.txt
	plannerRaw string

	//go:embed template/sales.txt
	salesRaw string

	//go:embed template/support.txt
	supportRaw string
)

// Set is one system prompt per model-backed agent.
type Set struct {
	Planner string
	Sales   string
	Support string
}

// Load returns the embedded prompts, trimmed and checked.
func Load() (Set, error) {
	s := Set{
		Planner: strings.TrimSpace(plannerRaw),
		Sales:   strings.TrimSpace(salesRaw),
		Support: strings.TrimSpace(supportRaw),
	}
	if err := s.Validate(); err != nil {
		return Set{}, err
	}
	return s, nil
}

// Validate requires every prompt to be present and the planner to describe
// every routable goal type, so a new goal cannot ship without routing text.
func (s Set) Validate() error {
	for _, agentType := range []contractx.AgentType{contractx.AgentTypeOrchestrator, contractx.AgentTypeSales, contractx.AgentTypeSupport} {
		if s.For(agentType) == "" {
			return fmt.Errorf("%w: %s prompt is empty", contractx.ErrValidation, agentType)
		}
	}
	var missing []string
	for _, goalType := range statex.GoalTypes() {
		if !strings.Contains(s.Planner, goalType+":") {
			missing = append(missing, goalType)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: planner prompt does not describe %s", contractx.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// For returns the prompt agentType runs with; the orchestrator uses the planner prompt.
func (s Set) For(agentType contractx.AgentType) string {
	switch agentType {
	case contractx.AgentTypeOrchestrator:
		return s.Planner
	case contractx.AgentTypeSales:
		return s.Sales
	case contractx.AgentTypeSupport:
		return s.Support
	}
	return ""
}
