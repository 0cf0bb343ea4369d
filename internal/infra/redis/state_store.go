package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/navigation"
)

// StateStore keeps navigation state in Redis so a run resumes on any instance.
// Each run is one JSON document: SET nav:state:{runID} {json} EX ttl
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) Load(ctx context.Context, runID string) (navigation.State, error) {
	raw, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return navigation.State{}, domain.ErrStateNotFound
	}
	if err != nil {
		return navigation.State{}, fmt.Errorf("load navigation state: %w", err)
	}

	var state navigation.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return navigation.State{}, fmt.Errorf("decode navigation state: %w", err)
	}
	return state, nil
}

func (s *StateStore) Save(ctx context.Context, state navigation.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode navigation state: %w", err)
	}
	return s.client.Set(ctx, s.key(state.RunID), payload, s.ttl).Err()
}

// Delete forgets the saved state of a run.
func (s *StateStore) Delete(ctx context.Context, runID string) error {
	return s.client.Del(ctx, s.key(runID)).Err()
}

func (s *StateStore) key(runID string) string {
	return "nav:state:" + runID
}
