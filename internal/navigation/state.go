// Package navigation implements the challenge navigation state machine: it tracks the
// open problem, answers and visited problems, emits actions, and keeps derived timers
// in step with the action log.
package navigation

import (
	"context"
	"time"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/timing"
)

// StateStore persists navigation state per challenge run so a reload can resume.
// Load returns domain.ErrStateNotFound when nothing was saved.
type StateStore interface {
	Load(ctx context.Context, runID string) (State, error)
	Save(ctx context.Context, state State) error
	Delete(ctx context.Context, runID string) error
}

// Backend is the server side of a run: the authoritative action log.
type Backend interface {
	RecordAction(ctx context.Context, runID string, action domain.Action) error
	LoadActions(ctx context.Context, runID string) ([]domain.Action, error)
	CompleteRun(ctx context.Context, runID string) error
}

// Preferences are the user's navigation preferences.
type Preferences struct {
	PauseAfterSubmission bool `json:"pauseAfterSubmission"`
	AutoAdvance          bool `json:"autoAdvance"`
}

// Phase is the state machine's coarse state.
type Phase string

const (
	PhaseActive   Phase = "active"
	PhasePaused   Phase = "paused"
	PhaseComplete Phase = "complete"
)

// State is everything persisted for a run. Timers and TotalTimePaused are a cache of
// replaying Actions and are refreshed whenever the log changes.
type State struct {
	RunID           string                                  `json:"runId"`
	CurrentIndex    int                                     `json:"currentIndex"`
	Responses       map[string][]domain.TimestampedResponse `json:"responses"`
	SelectedAnswers map[string]string                       `json:"selectedAnswers"`
	Timers          map[string]timing.ProblemTimer          `json:"problemTimers"`
	TotalTimePaused time.Duration                           `json:"totalTimePaused"`
	Visited         map[string]bool                         `json:"visited"`
	Complete        bool                                    `json:"complete"`
	Paused          bool                                    `json:"paused"`
	ShowAllProblems bool                                    `json:"showAllProblems"`
	Preferences     Preferences                             `json:"preferences"`
	Actions         []domain.Action                         `json:"actions"`
	CompletedAt     *time.Time                              `json:"completedAt,omitempty"`
	SavedAt         time.Time                               `json:"savedAt"`
}

func newState(runID string, prefs Preferences) State {
	return State{
		RunID:           runID,
		Responses:       make(map[string][]domain.TimestampedResponse),
		SelectedAnswers: make(map[string]string),
		Timers:          make(map[string]timing.ProblemTimer),
		Visited:         make(map[string]bool),
		Preferences:     prefs,
	}
}

// Clone returns a deep copy safe to hand to stores and subscribers.
func (s State) Clone() State {
	out := s
	out.Responses = make(map[string][]domain.TimestampedResponse, len(s.Responses))
	for k, v := range s.Responses {
		out.Responses[k] = append([]domain.TimestampedResponse(nil), v...)
	}
	out.SelectedAnswers = make(map[string]string, len(s.SelectedAnswers))
	for k, v := range s.SelectedAnswers {
		out.SelectedAnswers[k] = v
	}
	out.Timers = make(map[string]timing.ProblemTimer, len(s.Timers))
	for k, v := range s.Timers {
		out.Timers[k] = v
	}
	out.Visited = make(map[string]bool, len(s.Visited))
	for k, v := range s.Visited {
		out.Visited[k] = v
	}
	out.Actions = append([]domain.Action(nil), s.Actions...)
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

func (s *State) ensureMaps() {
	if s.Responses == nil {
		s.Responses = make(map[string][]domain.TimestampedResponse)
	}
	if s.SelectedAnswers == nil {
		s.SelectedAnswers = make(map[string]string)
	}
	if s.Timers == nil {
		s.Timers = make(map[string]timing.ProblemTimer)
	}
	if s.Visited == nil {
		s.Visited = make(map[string]bool)
	}
}

// Snapshot is the presentation view of a navigation session at one instant.
type Snapshot struct {
	RunID           string                                  `json:"runId"`
	Phase           Phase                                   `json:"phase"`
	CurrentIndex    int                                     `json:"currentIndex"`
	CurrentLabel    string                                  `json:"currentLabel,omitempty"`
	Labels          []string                                `json:"labels"`
	Timers          map[string]timing.ProblemTimer          `json:"problemTimers"`
	TotalTimePaused time.Duration                           `json:"totalTimePaused"`
	Statuses        map[string]domain.ProblemStatus         `json:"statuses"`
	Responses       map[string][]domain.TimestampedResponse `json:"responses"`
	SelectedAnswers map[string]string                       `json:"selectedAnswers"`
	Visited         map[string]bool                         `json:"visited"`
	ShowAllProblems bool                                    `json:"showAllProblems"`
	Preferences     Preferences                             `json:"preferences"`
	ActionCount     int                                     `json:"actionCount"`
	At              time.Time                               `json:"at"`
}
