package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/corecraft-support/agent/contract"
	statex "github.com/tanpawarit/corecraft-support/agent/state"
)

func LoadOrCreateState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	workspaceID string,
	channelType string,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := loadOrCreateState(ctx, store, in.SessionID, workspaceID, in.CustomerID, channelType, in.Now)
	if err != nil {
		return nil, err
	}
	st.Turns++
	in.Session = st
	return in, nil
}

// loadOrCreateState never moves an existing session to another customer.
func loadOrCreateState(
	ctx context.Context,
	store statex.Store,
	sessionID string,
	workspaceID string,
	customerID string,
	channelType string,
	now time.Time,
) (*statex.SessionState, error) {
	st, err := store.Load(ctx, sessionID)
	if err == nil {
		if customerID != "" && st.CustomerID != "" && st.CustomerID != customerID {
			return nil, fmt.Errorf("%w: session %s belongs to another customer", contractx.ErrValidation, sessionID)
		}
		if st.CustomerID == "" && customerID != "" {
			st.CustomerID = customerID
		}
		return st, nil
	}
	if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, err
	}

	return statex.NewSessionState(sessionID, workspaceID, customerID, channelType, now), nil
}
