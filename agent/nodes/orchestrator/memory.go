package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
)

// ReadMemory loads the long-term summary for the session's customer.
// Anonymous sessions have no memory until verify_customer binds them.
func ReadMemory(ctx context.Context, in *GraphState, memory contractx.MemoryStore) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	customerID := strings.TrimSpace(in.Session.CustomerID)
	if customerID == "" {
		in.MemorySummary = ""
		return in, nil
	}
	summary, err := memory.ReadSummary(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("read memory for %s: %w", customerID, err)
	}
	in.MemorySummary = summary
	return in, nil
}

// WriteMemory appends the specialist's memory_update, if any.
func WriteMemory(ctx context.Context, in *GraphState, memory contractx.MemoryStore) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	customerID := strings.TrimSpace(in.Session.CustomerID)
	update := strings.TrimSpace(in.StateUpdates.MemoryUpdate)
	if customerID == "" || update == "" {
		return in, nil
	}
	if err := memory.WriteSummary(ctx, customerID, update); err != nil {
		return nil, fmt.Errorf("write memory for %s: %w", customerID, err)
	}
	return in, nil
}
