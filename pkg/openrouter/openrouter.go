// Package openrouter builds chat clients against the OpenRouter
// OpenAI-compatible API.
package openrouter

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Models that reject reasoning output unless it is switched off explicitly.
var noReasoningModels = map[string]bool{
	"x-ai/grok-4.1-fast": true,
}

// Config selects one model. Zero MaxTokens leaves the provider default.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	MaxRetries  int
	SiteURL     string
	SiteName    string
}

func (c Config) baseURL() string {
	if u := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"); u != "" {
		return u
	}
	return DefaultBaseURL
}

// attribution returns the headers OpenRouter uses for app rankings.
func (c Config) attribution() map[string]string {
	h := map[string]string{}
	if v := strings.TrimSpace(c.SiteURL); v != "" {
		h["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(c.SiteName); v != "" {
		h["X-Title"] = v
	}
	return h
}

// NewChatModel returns a tool-calling eino model for c.
func NewChatModel(ctx context.Context, c Config) (model.ToolCallingChatModel, error) {
	name := strings.TrimSpace(c.Model)
	if name == "" {
		return nil, fmt.Errorf("openrouter: model is required")
	}
	temp := c.Temperature
	conf := &openaimodel.ChatModelConfig{
		BaseURL:     c.baseURL(),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       name,
		Temperature: &temp,
		Timeout:     c.Timeout,
	}
	if c.MaxTokens > 0 {
		maxTokens := c.MaxTokens
		conf.MaxTokens = &maxTokens
	}
	if noReasoningModels[name] {
		conf.ExtraFields = map[string]any{
			"reasoning": map[string]any{"exclude": true, "effort": "none"},
		}
	}

	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("openrouter: create chat model %s: %w", name, err)
	}
	return m, nil
}

// NewClient returns a raw SDK client, or nil when no API key is set.
func NewClient(c Config) *openaisdk.Client {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return nil
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(c.baseURL()),
	}
	if c.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(c.Timeout))
	}
	if c.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(c.MaxRetries))
	}
	for k, v := range c.attribution() {
		opts = append(opts, option.WithHeader(k, v))
	}
	client := openaisdk.NewClient(opts...)
	return &client
}
