package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const summarizePrompt = `You maintain notes about a CoreCraft Computers customer for support agents.
Merge the notes below into one short paragraph. Keep order ids, product ids, open issues,
promises made to the customer and stated preferences. Drop greetings and resolved small talk.
Reply with the paragraph only.`

type chatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// ChatSummarizer compacts notes with a chat completion.
type ChatSummarizer struct {
	completions chatCompleter
	model       string
	maxTokens   int64
}

func NewChatSummarizer(client *openai.Client, model string) (*ChatSummarizer, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	return newChatSummarizer(&client.Chat.Completions, model)
}

func newChatSummarizer(completions chatCompleter, model string) (*ChatSummarizer, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("summary model is required")
	}
	return &ChatSummarizer{completions: completions, model: strings.TrimSpace(model), maxTokens: 400}, nil
}

func (s *ChatSummarizer) Summarize(ctx context.Context, entries []string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(e))
		b.WriteString("\n")
	}

	resp, err := s.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarizePrompt),
			openai.UserMessage(b.String()),
		},
		MaxTokens:   openai.Int(s.maxTokens),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("memory: summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("memory: summarize: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
