// Package llm holds the model settings shared by the planner and the specialists.
package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	openrouterx "github.com/tanpawarit/corecraft-support/pkg/openrouter"
)

// Config is loaded with the LLM prefix. Per-agent model and temperature
// override the defaults; a negative temperature means unset.
type Config struct {
	BaseURL     string        `split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey      string        `split_words:"true"`
	Model       string        `default:"openai/gpt-4.1-mini"`
	MaxTokens   int           `split_words:"true" default:"2000"`
	Temperature float32       `default:"0.3"`
	Timeout     time.Duration `default:"30s"`
	MaxRetries  int           `split_words:"true" default:"2"`
	SiteURL     string        `split_words:"true"`
	SiteName    string        `split_words:"true" default:"CoreCraft Support"`

	PlannerModel       string  `split_words:"true"`
	SalesModel         string  `split_words:"true"`
	SupportModel       string  `split_words:"true"`
	PlannerTemperature float32 `split_words:"true" default:"0"`
	SalesTemperature   float32 `split_words:"true" default:"-1"`
	SupportTemperature float32 `split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) override(agentType contractx.AgentType) (string, float32) {
	switch agentType {
	case contractx.AgentTypeOrchestrator:
		return c.PlannerModel, c.PlannerTemperature
	case contractx.AgentTypeSales:
		return c.SalesModel, c.SalesTemperature
	case contractx.AgentTypeSupport:
		return c.SupportModel, c.SupportTemperature
	}
	return "", -1
}

// For returns the model settings agentType runs with.
func (c Config) For(agentType contractx.AgentType) openrouterx.Config {
	model, temp := c.override(agentType)
	if strings.TrimSpace(model) == "" {
		model = c.Model
	}
	if temp < 0 {
		temp = c.Temperature
	}
	return openrouterx.Config{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       strings.TrimSpace(model),
		MaxTokens:   c.MaxTokens,
		Temperature: temp,
		Timeout:     c.Timeout,
		MaxRetries:  c.MaxRetries,
		SiteURL:     c.SiteURL,
		SiteName:    c.SiteName,
	}
}
