package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/corecraft-support/agent/nodes/orchestrator"
)

type turnStep struct {
	name string
	run  func(context.Context, *nodex.GraphState) (*nodex.GraphState, error)
}

// turnSteps run in order between validate_request and finalize_reply.
func (o *Orchestrator) turnSteps() []turnStep {
	return []turnStep{
		{"load_or_create_state", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateState(ctx, in, o.store, o.workspaceID, o.channelType)
		}},
		{"read_memory", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ReadMemory(ctx, in, o.memory)
		}},
		{"plan_goal", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.PlanGoal(ctx, in, o.models.Planner())
		}},
		{"apply_plan", func(_ context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ApplyPlan(in)
		}},
		{"dispatch_specialist", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.DispatchSpecialist(ctx, in, o.models, o.tools, o.maxToolRounds)
		}},
		{"apply_state_updates", func(_ context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ApplyStateUpdates(in)
		}},
		{"validate_and_save_state", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ValidateAndSaveState(ctx, in, o.store)
		}},
		{"write_memory", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.WriteMemory(ctx, in, o.memory)
		}},
	}
}

// compileHandleMessageGraph builds the linear turn pipeline. State is saved
// before memory is written.
func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(_ context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	prev := "validate_request"
	if err := graph.AddEdge(compose.START, prev); err != nil {
		return nil, fmt.Errorf("add edge start->%s: %w", prev, err)
	}
	for _, step := range o.turnSteps() {
		if err := graph.AddLambdaNode(step.name, compose.InvokableLambda(step.run)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", step.name, err)
		}
		if err := graph.AddEdge(prev, step.name); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", prev, step.name, err)
		}
		prev = step.name
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(_ context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}
	if err := graph.AddEdge(prev, "finalize_reply"); err != nil {
		return nil, fmt.Errorf("add edge %s->finalize_reply: %w", prev, err)
	}
	if err := graph.AddEdge("finalize_reply", compose.END); err != nil {
		return nil, fmt.Errorf("add edge finalize_reply->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("corecraft.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
