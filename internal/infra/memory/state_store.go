package memory

import (
	"context"
	"sync"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/navigation"
)

// StateStore is an in-memory navigation.StateStore.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]navigation.State
}

func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[string]navigation.State),
	}
}

func (s *StateStore) Load(_ context.Context, runID string) (navigation.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[runID]
	if !ok {
		return navigation.State{}, domain.ErrStateNotFound
	}
	return state.Clone(), nil
}

func (s *StateStore) Save(_ context.Context, state navigation.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.RunID] = state.Clone()
	return nil
}

// Delete forgets the saved state of a run.
func (s *StateStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, runID)
	return nil
}
