package contract

import "context"

// Planner routes a customer message to a goal. It never talks to the customer.
type Planner interface {
	Plan(ctx context.Context, req PlannerRequest) (PlannerResponse, error)
}

// Specialist answers within one goal, asking for tools until it can reply.
type Specialist interface {
	Run(ctx context.Context, req SpecialistRequest) (SpecialistResponse, error)
}

// Registry hands out the model-backed agents of one deployment. Sales owns
// catalog, builds and orders; Support owns refunds, cancellations, warranty
// and tickets.
type Registry interface {
	Planner() Planner
	Sales() Specialist
	Support() Specialist
}

// ToolGateway executes store tool calls on behalf of agentType, which decides
// the tools it may reach. Business failures such as a policy denial or an
// unknown order are reported in ToolResult.Error; a returned error means the
// turn cannot continue.
type ToolGateway interface {
	Execute(ctx context.Context, agentType AgentType, reqs []ToolRequest) ([]ToolResult, error)
}

// MemoryStore keeps one running summary per verified customer. Anonymous
// sessions have no customer id and are never summarised.
type MemoryStore interface {
	ReadSummary(ctx context.Context, customerID string) (string, error)
	WriteSummary(ctx context.Context, customerID string, update string) error
}
