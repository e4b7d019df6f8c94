package prompt

import (
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
)

func TestLoadEmbeddedPrompts(t *testing.T) {
	t.Parallel()

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !strings.HasPrefix(s.For(contractx.AgentTypeOrchestrator), "You are the routing planner") {
		t.Fatalf("orchestrator prompt = %.40q", s.Planner)
	}
	if s.For(contractx.AgentTypeStaff) != "" {
		t.Fatal("staff has no prompt")
	}
}

func TestValidateRejectsIncompleteSet(t *testing.T) {
	t.Parallel()

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	noSales := s
	noSales.Sales = ""
	if err := noSales.Validate(); !errors.Is(err, contractx.ErrValidation) || !strings.Contains(err.Error(), "sales") {
		t.Fatalf("missing sales prompt error = %v", err)
	}

	noWarranty := s
	noWarranty.Planner = strings.ReplaceAll(s.Planner, "support.warranty:", "")
	err = noWarranty.Validate()
	if !errors.Is(err, contractx.ErrValidation) || !strings.Contains(err.Error(), "support.warranty") {
		t.Fatalf("undescribed goal error = %v", err)
	}
}
