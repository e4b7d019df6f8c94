package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
)

const (
	pathTool       = "tool_path"
	pathStructured = "structured_path"
)

type edgeAdder interface {
	AddEdge(startNode, endNode string) error
}

// chain connects nodes in order.
func chain(g edgeAdder, nodes ...string) error {
	for i := 1; i < len(nodes); i++ {
		if err := g.AddEdge(nodes[i-1], nodes[i]); err != nil {
			return fmt.Errorf("add edge %s->%s: %w", nodes[i-1], nodes[i], err)
		}
	}
	return nil
}

// promptTemplate renders the system prompt and the JSON payload as the user turn.
// The system prompt is an FString template, so it must not contain braces.
func promptTemplate(systemPrompt string) einoprompt.ChatTemplate {
	return einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)
}

func compilePlannerGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, plannerLLMOutput], error) {
	runner, err := compileStructuredLLMGraph[plannerLLMOutput](ctx, chatModel, systemPrompt, "corecraft.planner")
	if err != nil {
		return nil, fmt.Errorf("compile planner graph: %w", err)
	}
	return runner, nil
}

func compileSpecialistStructuredGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	agentType contractx.AgentType,
) (compose.Runnable[map[string]any, specialistLLMOutput], error) {
	runner, err := compileStructuredLLMGraph[specialistLLMOutput](ctx, chatModel, systemPrompt, "corecraft."+string(agentType)+".reply")
	if err != nil {
		return nil, fmt.Errorf("compile %s reply graph: %w", agentType, err)
	}
	return runner, nil
}

// compileSpecialistToolPlanningGraph returns the raw model message so the
// caller can read tool calls. Tools are bound on chatModel beforehand.
func compileSpecialistToolPlanningGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	agentType contractx.AgentType,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", promptTemplate(systemPrompt)); err != nil {
		return nil, fmt.Errorf("add tool planning prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add tool planning model node: %w", err)
	}
	if err := chain(graph, compose.START, "prompt", "model", compose.END); err != nil {
		return nil, err
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("corecraft."+string(agentType)+".act"))
	if err != nil {
		return nil, fmt.Errorf("compile %s tool planning graph: %w", agentType, err)
	}
	return runner, nil
}

type specialistGraphState struct {
	Req       contractx.SpecialistRequest
	IsBlocked bool
}

// routeSpecialist picks the structured path for blocked goals and final
// replies; everything else may call tools.
func routeSpecialist(_ context.Context, in *specialistGraphState) (string, error) {
	if in == nil {
		return "", fmt.Errorf("%w: specialist graph state is nil", contractx.ErrValidation)
	}
	if in.IsBlocked || in.Req.Finalize {
		return pathStructured, nil
	}
	return pathTool, nil
}

func compileSpecialistRuntimeGraph(
	ctx context.Context,
	agentType contractx.AgentType,
	toolFlow func(context.Context, contractx.SpecialistRequest) (contractx.SpecialistResponse, error),
	structuredFlow func(context.Context, contractx.SpecialistRequest, bool) (contractx.SpecialistResponse, error),
) (compose.Runnable[contractx.SpecialistRequest, contractx.SpecialistResponse], error) {
	graph := compose.NewGraph[contractx.SpecialistRequest, contractx.SpecialistResponse]()

	if err := graph.AddLambdaNode("prepare",
		compose.InvokableLambda(func(_ context.Context, req contractx.SpecialistRequest) (*specialistGraphState, error) {
			if req.ActiveGoal == nil {
				return nil, fmt.Errorf("%w: active goal is required", contractx.ErrValidation)
			}
			if strings.TrimSpace(req.ActiveGoal.Type) == "" {
				return nil, fmt.Errorf("%w: active goal type is required", contractx.ErrValidation)
			}
			return &specialistGraphState{
				Req:       req,
				IsBlocked: req.ActiveGoal.IsBlocked() || len(req.ActiveGoal.Missing) > 0,
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add prepare node: %w", err)
	}

	if err := graph.AddLambdaNode(pathTool,
		compose.InvokableLambda(func(ctx context.Context, in *specialistGraphState) (contractx.SpecialistResponse, error) {
			return toolFlow(ctx, in.Req)
		}),
	); err != nil {
		return nil, fmt.Errorf("add tool node: %w", err)
	}
	if err := graph.AddLambdaNode(pathStructured,
		compose.InvokableLambda(func(ctx context.Context, in *specialistGraphState) (contractx.SpecialistResponse, error) {
			return structuredFlow(ctx, in.Req, in.IsBlocked)
		}),
	); err != nil {
		return nil, fmt.Errorf("add structured node: %w", err)
	}

	branch := compose.NewGraphBranch(routeSpecialist, map[string]bool{pathTool: true, pathStructured: true})
	if err := graph.AddBranch("prepare", branch); err != nil {
		return nil, fmt.Errorf("add specialist branch: %w", err)
	}
	if err := chain(graph, compose.START, "prepare"); err != nil {
		return nil, err
	}
	if err := chain(graph, pathTool, compose.END); err != nil {
		return nil, err
	}
	if err := chain(graph, pathStructured, compose.END); err != nil {
		return nil, err
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("corecraft."+string(agentType)))
	if err != nil {
		return nil, fmt.Errorf("compile %s runtime graph: %w", agentType, err)
	}
	return runner, nil
}

// stripCodeFence removes a markdown code fence some models wrap JSON in.
func stripCodeFence(_ context.Context, msg *schema.Message) (*schema.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: model returned no message", contractx.ErrSchemaViolation)
	}
	content := strings.TrimSpace(msg.Content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	out := *msg
	out.Content = strings.TrimSpace(content)
	return &out, nil
}

func compileStructuredLLMGraph[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, T], error) {
	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("prompt", promptTemplate(systemPrompt)); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddLambdaNode("strip_fence", compose.InvokableLambda(stripCodeFence)); err != nil {
		return nil, fmt.Errorf("add strip fence node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}
	if err := chain(graph, compose.START, "prompt", "model", "strip_fence", "parse_json", compose.END); err != nil {
		return nil, err
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph: %w", err)
	}
	return runner, nil
}
