package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

type specialistImpl struct {
	agentType        contractx.AgentType
	structuredRunner compose.Runnable[map[string]any, specialistLLMOutput]
	toolRunner       compose.Runnable[map[string]any, *schema.Message]
	runtimeRunner    compose.Runnable[contractx.SpecialistRequest, contractx.SpecialistResponse]
	allowedTools     map[string]struct{}
}

type specialistLLMOutput struct {
	Message      string                 `json:"message"`
	StateUpdates contractx.StateUpdates `json:"state_updates,omitempty"`
}

func newSpecialist(
	ctx context.Context,
	agentType contractx.AgentType,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	tools []*schema.ToolInfo,
) (*specialistImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: %s system prompt", contractx.ErrPromptMissing, agentType)
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("%w: specialist=%s has no tools", contractx.ErrValidation, agentType)
	}
	structuredRunner, err := compileSpecialistStructuredGraph(ctx, chatModel, systemPrompt, agentType)
	if err != nil {
		return nil, fmt.Errorf("%w: compile structured specialist graph: %v", contractx.ErrModelInvoke, err)
	}

	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for specialist=%s: %v", contractx.ErrModelInvoke, agentType, err)
	}
	toolRunner, err := compileSpecialistToolPlanningGraph(ctx, toolModel, systemPrompt, agentType)
	if err != nil {
		return nil, fmt.Errorf("%w: compile tool planner graph: %v", contractx.ErrModelInvoke, err)
	}

	allowedTools := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		allowedTools[t.Name] = struct{}{}
	}

	spec := &specialistImpl{
		agentType:        agentType,
		structuredRunner: structuredRunner,
		toolRunner:       toolRunner,
		allowedTools:     allowedTools,
	}

	runtimeRunner, err := compileSpecialistRuntimeGraph(ctx, agentType, spec.runToolPlanning, spec.runStructured)
	if err != nil {
		return nil, fmt.Errorf("%w: compile specialist runtime graph: %v", contractx.ErrModelInvoke, err)
	}
	spec.runtimeRunner = runtimeRunner

	return spec, nil
}

func (s *specialistImpl) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	out, err := s.runtimeRunner.Invoke(ctx, req)
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}
	return out, nil
}

func (s *specialistImpl) runStructured(
	ctx context.Context,
	req contractx.SpecialistRequest,
	isBlocked bool,
) (contractx.SpecialistResponse, error) {
	mode := modeFinalize
	if isBlocked {
		mode = modeAsk
	}
	input, err := templateInput(newSpecialistPayload(mode, req))
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}
	out, err := s.structuredRunner.Invoke(ctx, input)
	if err != nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: %s reply invoke: %v", contractx.ErrModelInvoke, s.agentType, err)
	}

	if err := out.normalize(); err != nil {
		return contractx.SpecialistResponse{}, err
	}
	return contractx.SpecialistResponse{Message: out.Message, StateUpdates: out.StateUpdates}, nil
}

// normalize rejects replies the orchestrator cannot apply.
func (o *specialistLLMOutput) normalize() error {
	o.Message = strings.TrimSpace(o.Message)
	if o.Message == "" {
		return fmt.Errorf("%w: specialist message is empty", contractx.ErrSchemaViolation)
	}
	u := &o.StateUpdates
	u.NextQuestion = strings.TrimSpace(u.NextQuestion)
	if len(u.Missing) > 0 && u.NextQuestion == "" {
		return fmt.Errorf("%w: next_question required when missing is set", contractx.ErrSchemaViolation)
	}
	if strings.EqualFold(u.SetStatus, string(statex.GoalDone)) {
		u.MarkDone = true
	}
	return nil
}

// runToolPlanning asks the tool-bound model for the next call. Once it stops
// calling tools after some results came back, the structured path writes the reply.
func (s *specialistImpl) runToolPlanning(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	input, err := templateInput(newSpecialistPayload(modeAct, req))
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}
	msg, err := s.toolRunner.Invoke(ctx, input)
	if err != nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: %s tool planning invoke: %v", contractx.ErrModelInvoke, s.agentType, err)
	}
	if msg == nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: empty tool planning response", contractx.ErrSchemaViolation)
	}

	toolRequests, err := toToolRequests(msg.ToolCalls)
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}

	if len(toolRequests) == 0 {
		if len(req.ToolResults) > 0 {
			return s.runStructured(ctx, req, false)
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			return contractx.SpecialistResponse{}, fmt.Errorf("%w: active mode requires tool requests", contractx.ErrSchemaViolation)
		}
		return contractx.SpecialistResponse{
			Message: content,
		}, nil
	}

	for _, tr := range toolRequests {
		if _, ok := s.allowedTools[tr.Tool]; !ok {
			return contractx.SpecialistResponse{}, fmt.Errorf("%w: tool=%s is not allowed for agent=%s", contractx.ErrSchemaViolation, tr.Tool, s.agentType)
		}
	}

	return contractx.SpecialistResponse{
		ToolRequests: toolRequests,
	}, nil
}

func toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		tool := strings.TrimSpace(call.Function.Name)
		if tool == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		args := map[string]any{}
		rawArgs := strings.TrimSpace(call.Function.Arguments)
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, tool, err)
			}
		}

		reqs = append(reqs, contractx.ToolRequest{
			Tool: tool,
			Args: args,
		})
	}
	return reqs, nil
}
