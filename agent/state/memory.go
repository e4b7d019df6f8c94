package state

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded sessions in process. Used by tests and the offline chat.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*SessionState, error) {
	key, err := sessionKey(DefaultKeyPrefix, sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	raw, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		return nil, ErrStateNotFound
	}
	return decodeState(raw)
}

func (s *MemoryStore) Save(_ context.Context, st *SessionState) error {
	if st == nil {
		return ErrNilSessionState
	}
	key, err := sessionKey(DefaultKeyPrefix, st.SessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, err := encodeState(st)
	if err != nil {
		return err
	}
	s.sessions[key] = payload
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	key, err := sessionKey(DefaultKeyPrefix, sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	return nil
}
