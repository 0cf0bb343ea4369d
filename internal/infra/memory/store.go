package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"grindolympiads/internal/domain"
)

// Store keeps exams, challenges, runs, actions and users in process memory.
// It satisfies every app repository and is used by default and in tests.
type Store struct {
	mu         sync.RWMutex
	exams      map[string]domain.Exam
	challenges map[string]domain.Challenge
	runs       map[string]domain.ChallengeRun
	users      map[string]domain.User
	actions    []domain.Action
	actionIDs  map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		exams:      make(map[string]domain.Exam),
		challenges: make(map[string]domain.Challenge),
		runs:       make(map[string]domain.ChallengeRun),
		users:      make(map[string]domain.User),
		actionIDs:  make(map[string]struct{}),
	}
}

func (s *Store) SaveExam(_ context.Context, exam domain.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[exam.ID] = exam
	return nil
}

func (s *Store) GetExam(_ context.Context, id string) (domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exam, ok := s.exams[id]
	if !ok {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	return exam, nil
}

func (s *Store) GetChallenge(_ context.Context, id string) (domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenge, ok := s.challenges[id]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return challenge, nil
}

func (s *Store) SaveChallenge(_ context.Context, challenge domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[challenge.ID] = challenge
	return nil
}

func (s *Store) CreateRun(_ context.Context, run domain.ChallengeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.Actions = nil
	run.Responses = copyResponses(run.Responses)
	s.runs[run.ID] = run
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (domain.ChallengeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.ChallengeRun{}, domain.ErrRunNotFound
	}
	return s.withActionsLocked(run), nil
}

func (s *Store) GetRuns(_ context.Context, ids []string) ([]domain.ChallengeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChallengeRun, 0, len(ids))
	for _, id := range ids {
		if run, ok := s.runs[id]; ok {
			out = append(out, s.withActionsLocked(run))
		}
	}
	return out, nil
}

func (s *Store) CompleteRun(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	if run.CompletedAt == nil {
		run.CompletedAt = &at
		s.runs[id] = run
	}
	return nil
}

func (s *Store) AppendResponse(_ context.Context, runID, label string, response domain.TimestampedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return domain.ErrRunNotFound
	}
	if run.Responses == nil {
		run.Responses = make(map[string][]domain.TimestampedResponse)
	}
	run.Responses[label] = append(run.Responses[label], response)
	s.runs[runID] = run
	return nil
}

// AppendAction is idempotent on the action id: a re-sent action is ignored.
func (s *Store) AppendAction(_ context.Context, action domain.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if action.ID != "" {
		if _, ok := s.actionIDs[action.ID]; ok {
			return nil
		}
		s.actionIDs[action.ID] = struct{}{}
	}
	s.actions = append(s.actions, action)
	return nil
}

func (s *Store) ListRunActions(_ context.Context, runID string) ([]domain.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runActionsLocked(runID), nil
}

func (s *Store) ListActions(_ context.Context) ([]domain.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Action(nil), s.actions...), nil
}

func (s *Store) SaveUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) withActionsLocked(run domain.ChallengeRun) domain.ChallengeRun {
	run.Responses = copyResponses(run.Responses)
	run.Actions = s.runActionsLocked(run.ID)
	return run
}

func (s *Store) runActionsLocked(runID string) []domain.Action {
	out := make([]domain.Action, 0)
	for _, a := range s.actions {
		if a.ChallengeRunID == runID {
			out = append(out, a)
		}
	}
	return out
}

func copyResponses(in map[string][]domain.TimestampedResponse) map[string][]domain.TimestampedResponse {
	out := make(map[string][]domain.TimestampedResponse, len(in))
	for k, v := range in {
		out[k] = append([]domain.TimestampedResponse(nil), v...)
	}
	return out
}
