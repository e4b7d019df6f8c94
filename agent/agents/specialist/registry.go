package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	llmx "github.com/tanpawarit/corecraft-support/agent/llm"
	promptx "github.com/tanpawarit/corecraft-support/agent/prompt"
	openrouterx "github.com/tanpawarit/corecraft-support/pkg/openrouter"
)

type registryImpl struct {
	planner contractx.Planner
	sales   contractx.Specialist
	support contractx.Specialist
}

func (r *registryImpl) Planner() contractx.Planner {
	return r.planner
}

func (r *registryImpl) Sales() contractx.Specialist {
	return r.sales
}

func (r *registryImpl) Support() contractx.Specialist {
	return r.support
}

// ToolSource supplies the tool definitions bound to each specialist model.
type ToolSource interface {
	InfosForAgent(agentType contractx.AgentType) []*schema.ToolInfo
}

func NewRegistry(ctx context.Context, cfg llmx.Config, tools ToolSource) (contractx.Registry, error) {
	if tools == nil {
		return nil, fmt.Errorf("%w: tool source is required", contractx.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts, err := promptx.Load()
	if err != nil {
		return nil, err
	}

	models := make(map[contractx.AgentType]einomodel.ToolCallingChatModel, 3)
	for _, agentType := range []contractx.AgentType{contractx.AgentTypeOrchestrator, contractx.AgentTypeSales, contractx.AgentTypeSupport} {
		m, err := openrouterx.NewChatModel(ctx, cfg.For(agentType))
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, agentType, err)
		}
		models[agentType] = m
	}
	orchestratorModel := models[contractx.AgentTypeOrchestrator]
	salesModel := models[contractx.AgentTypeSales]
	supportModel := models[contractx.AgentTypeSupport]

	planner, err := newPlanner(ctx, orchestratorModel, prompts.Planner)
	if err != nil {
		return nil, err
	}

	sales, err := newSpecialist(ctx, contractx.AgentTypeSales, salesModel, prompts.Sales, tools.InfosForAgent(contractx.AgentTypeSales))
	if err != nil {
		return nil, err
	}
	support, err := newSpecialist(ctx, contractx.AgentTypeSupport, supportModel, prompts.Support, tools.InfosForAgent(contractx.AgentTypeSupport))
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		planner: planner,
		sales:   sales,
		support: support,
	}, nil
}
