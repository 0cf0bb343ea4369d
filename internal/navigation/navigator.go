package navigation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/timing"
)

// Config describes the run a Navigator drives.
type Config struct {
	RunID        string
	UserID       string
	Labels       []string
	StartedAt    time.Time
	CompletedAt  *time.Time
	Preferences  Preferences
	TickInterval time.Duration
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(n *Navigator) {
		n.now = now
	}
}

// WithLogger sets the logger used for swallowed backend and store failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(n *Navigator) {
		n.log = logger
	}
}

// Navigator is the navigation state machine for one challenge run.
// Backend writes are fire-and-forget: the local log is the source of truth for the
// session and failures are only logged.
type Navigator struct {
	cfg     Config
	store   StateStore
	backend Backend
	now     func() time.Time
	log     zerolog.Logger
	ticker  *timing.Ticker

	mu          sync.Mutex
	state       State
	base        timing.Result
	seed        *timing.Result
	seedFrom    int
	opened      bool
	closed      bool
	subscribers map[chan Snapshot]struct{}

	writes    sync.WaitGroup
	lastWrite chan struct{}
}

// New builds a Navigator. Call Open before any other operation.
func New(cfg Config, store StateStore, backend Backend, opts ...Option) *Navigator {
	n := &Navigator{
		cfg:         cfg,
		store:       store,
		backend:     backend,
		now:         time.Now,
		log:         log.Logger,
		state:       newState(cfg.RunID, cfg.Preferences),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With().Str("run_id", cfg.RunID).Logger()
	n.ticker = timing.NewTicker(cfg.TickInterval, func(time.Time) { n.Tick(n.now()) })
	return n
}

// Open resumes persisted state for the run, or starts a fresh session on the first
// problem. It starts the live ticker unless the run is already complete.
func (n *Navigator) Open(ctx context.Context) error {
	n.mu.Lock()
	if n.opened {
		n.mu.Unlock()
		return nil
	}
	n.opened = true

	saved, err := n.store.Load(ctx, n.cfg.RunID)
	switch {
	case err == nil:
		n.resumeLocked(ctx, saved)
	case errors.Is(err, domain.ErrStateNotFound):
		n.startLocked(ctx)
	default:
		n.log.Warn().Err(err).Msg("load saved navigation state failed; starting fresh")
		n.startLocked(ctx)
	}
	n.commitLocked(ctx)
	complete := n.state.Complete
	n.mu.Unlock()

	if !complete {
		n.ticker.Start(ctx)
	}
	return nil
}

func (n *Navigator) startLocked(ctx context.Context) {
	now := n.now()
	actions, err := n.backend.LoadActions(ctx, n.cfg.RunID)
	if err != nil {
		n.log.Warn().Err(err).Msg("load run actions failed")
	}
	n.state.Actions = append(n.state.Actions, actions...)

	if n.cfg.CompletedAt != nil {
		at := *n.cfg.CompletedAt
		n.state.Complete = true
		n.state.CompletedAt = &at
		n.recomputeLocked(at)
		return
	}

	n.recomputeLocked(now)
	n.emitLocked(ctx, domain.Action{Type: domain.ActionOpenTest}, now)
	n.navigateLocked(ctx, 0, now)
}

func (n *Navigator) resumeLocked(ctx context.Context, saved State) {
	now := n.now()
	saved.ensureMaps()
	saved.RunID = n.cfg.RunID
	n.state = saved
	if n.cfg.CompletedAt != nil && !n.state.Complete {
		at := *n.cfg.CompletedAt
		n.state.Complete = true
		n.state.Paused = false
		n.state.CompletedAt = &at
	}

	if n.state.Complete {
		at := now
		if n.state.CompletedAt != nil {
			at = *n.state.CompletedAt
		}
		n.recomputeLocked(at)
		return
	}

	if len(saved.Actions) == 0 {
		open := ""
		if !saved.Paused {
			open = n.currentLabelLocked()
		}
		n.seedLocked(saved, open, saved.SavedAt, now)
		n.emitLocked(ctx, domain.Action{Type: domain.ActionLoadSavedState}, now)

		remote, err := n.backend.LoadActions(ctx, n.cfg.RunID)
		switch {
		case err != nil:
			n.log.Warn().Err(err).Msg("reconcile with backend action log failed; keeping saved timers")
		case len(remote) > 0:
			n.state.Actions = mergeActions(remote, n.state.Actions)
			n.seed = nil
			n.recomputeLocked(now)
			n.reopenLocked(ctx, now)
			return
		}
		if open != "" {
			n.emitLocked(ctx, domain.Action{Type: domain.ActionOpenProblem, ProblemLabel: open}, now)
		}
		return
	}

	// Saved timers are taken verbatim; only the open problem comes from the log.
	replay := timing.Reconstruct(saved.Actions, n.cfg.StartedAt, now, n.cfg.Labels)
	n.seedLocked(saved, replay.OpenLabel, replay.LastActionAt, now)
}

// seedLocked makes the saved timers the baseline that later actions are folded onto.
func (n *Navigator) seedLocked(saved State, open string, lastActionAt, now time.Time) {
	seed := timing.Result{
		Timers:       saved.Clone().Timers,
		TotalPaused:  saved.TotalTimePaused,
		OpenLabel:    open,
		LastActionAt: lastActionAt,
		ComputedAt:   saved.SavedAt,
	}
	if seed.ComputedAt.IsZero() {
		seed.ComputedAt = now
	}
	n.seed = &seed
	n.seedFrom = len(n.state.Actions)
	n.recomputeLocked(now)
}

// reopenLocked makes the reconciled log agree with CurrentIndex when the session
// is not paused.
func (n *Navigator) reopenLocked(ctx context.Context, now time.Time) {
	label := n.currentLabelLocked()
	if n.state.Paused || label == "" || n.base.OpenLabel == label {
		return
	}
	if open := n.base.OpenLabel; open != "" {
		n.emitLocked(ctx, domain.Action{Type: domain.ActionNavigateAway, ProblemLabel: open}, now)
	}
	n.emitLocked(ctx, domain.Action{Type: domain.ActionOpenProblem, ProblemLabel: label}, now)
}

// mergeActions appends local actions the remote log does not already contain.
func mergeActions(remote, local []domain.Action) []domain.Action {
	merged := append([]domain.Action(nil), remote...)
	seen := make(map[string]struct{}, len(remote))
	for _, a := range remote {
		if a.ID != "" {
			seen[a.ID] = struct{}{}
		}
	}
	for _, a := range local {
		if _, ok := seen[a.ID]; ok && a.ID != "" {
			continue
		}
		merged = append(merged, a)
	}
	return merged
}

// NavigateToProblem opens problem i. Navigating past the last problem completes the run.
func (n *Navigator) NavigateToProblem(ctx context.Context, i int) error {
	if i < 0 {
		return domain.ErrInvalidProblemIndex
	}
	return n.update(ctx, func(now time.Time) error {
		if n.state.Complete {
			return domain.ErrSessionComplete
		}
		n.navigateLocked(ctx, i, now)
		return nil
	})
}

// HandleAnswer submits answer for the current problem and locks its first timer.
func (n *Navigator) HandleAnswer(ctx context.Context, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return domain.ErrEmptyAnswer
	}
	return n.update(ctx, func(now time.Time) error {
		if err := n.checkActiveLocked(); err != nil {
			return err
		}
		label := n.currentLabelLocked()
		n.state.Responses[label] = append(n.state.Responses[label], domain.TimestampedResponse{
			Answer:    answer,
			Timestamp: now.UnixMilli(),
		})

		elapsed := n.base.Advance(now).Timers[label].FirstTimer
		n.emitLocked(ctx, domain.Action{
			Type:         domain.ActionSubmitAnswer,
			ProblemLabel: label,
			Data: map[string]any{
				"answer":     answer,
				"firstTimer": elapsed.Milliseconds(),
			},
		}, now)

		switch {
		case n.state.Preferences.PauseAfterSubmission:
			n.emitLocked(ctx, domain.Action{Type: domain.ActionNavigateAway, ProblemLabel: label}, now)
			n.state.Paused = true
		case n.state.Preferences.AutoAdvance:
			n.navigateLocked(ctx, n.state.CurrentIndex+1, now)
		}
		return nil
	})
}

// HandleSkip records a skip for the current problem and moves to the next one.
func (n *Navigator) HandleSkip(ctx context.Context) error {
	return n.update(ctx, func(now time.Time) error {
		if err := n.checkActiveLocked(); err != nil {
			return err
		}
		n.emitLocked(ctx, domain.Action{Type: domain.ActionSkipProblem, ProblemLabel: n.currentLabelLocked()}, now)
		n.navigateLocked(ctx, n.state.CurrentIndex+1, now)
		return nil
	})
}

// HandleContinue leaves the paused phase and moves to the next problem.
func (n *Navigator) HandleContinue(ctx context.Context) error {
	return n.update(ctx, func(now time.Time) error {
		if n.state.Complete {
			return domain.ErrSessionComplete
		}
		if !n.state.Paused {
			return domain.ErrNotPaused
		}
		n.state.Paused = false
		n.navigateLocked(ctx, n.state.CurrentIndex+1, now)
		return nil
	})
}

// ToggleShowAllProblems flips the view mode. It is logged but does not touch timers.
func (n *Navigator) ToggleShowAllProblems(ctx context.Context) error {
	return n.update(ctx, func(now time.Time) error {
		if n.state.Complete {
			return domain.ErrSessionComplete
		}
		n.state.ShowAllProblems = !n.state.ShowAllProblems
		typ := domain.ActionViewSingleProblem
		if n.state.ShowAllProblems {
			typ = domain.ActionViewAllProblems
		}
		n.emitLocked(ctx, domain.Action{Type: typ}, now)
		return nil
	})
}

// SelectAnswer stores an unsubmitted choice for label. Nothing is logged.
func (n *Navigator) SelectAnswer(ctx context.Context, label, answer string) error {
	return n.update(ctx, func(time.Time) error {
		if !n.hasLabel(label) {
			return domain.ErrProblemNotFound
		}
		if n.state.Complete {
			return domain.ErrSessionComplete
		}
		n.state.SelectedAnswers[label] = answer
		return nil
	})
}

// SetPreferences replaces the navigation preferences.
func (n *Navigator) SetPreferences(ctx context.Context, prefs Preferences) error {
	return n.update(ctx, func(time.Time) error {
		if n.state.Complete {
			return domain.ErrSessionComplete
		}
		n.state.Preferences = prefs
		return nil
	})
}

// Tick advances the running timer to now without replaying the log.
func (n *Navigator) Tick(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || n.state.Complete {
		return
	}
	advanced := n.base.Advance(now)
	n.state.Timers = advanced.Timers
	n.state.TotalTimePaused = advanced.TotalPaused
	n.broadcastLocked(now)
}

// Snapshot returns the current presentation view.
func (n *Navigator) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshotLocked(n.now())
}

// State returns a copy of the persisted state.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Clone()
}

// Phase reports the coarse state.
func (n *Navigator) Phase() Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phaseLocked()
}

// Subscribe returns a channel receiving a snapshot after every change and tick.
// The caller must invoke the returned cancel function.
func (n *Navigator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	n.subscribers[ch] = struct{}{}
	// buffered and still empty, so this cannot block while holding the lock
	ch <- n.snapshotLocked(n.now())
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if _, ok := n.subscribers[ch]; ok {
			delete(n.subscribers, ch)
			close(ch)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

// Close stops the ticker and releases subscribers. Pending backend writes keep running;
// use Wait to block on them.
func (n *Navigator) Close() {
	n.ticker.Stop()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for ch := range n.subscribers {
		delete(n.subscribers, ch)
		close(ch)
	}
}

// Wait blocks until every backend write issued so far has returned.
func (n *Navigator) Wait() {
	n.writes.Wait()
}

// update runs fn under the lock, then persists and broadcasts when it succeeded.
func (n *Navigator) update(ctx context.Context, fn func(now time.Time) error) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return domain.ErrSessionComplete
	}
	if err := fn(n.now()); err != nil {
		n.mu.Unlock()
		return err
	}
	n.commitLocked(ctx)
	complete := n.state.Complete
	n.mu.Unlock()

	if complete {
		n.ticker.Stop()
	}
	return nil
}

func (n *Navigator) checkActiveLocked() error {
	if n.state.Complete {
		return domain.ErrSessionComplete
	}
	if n.state.Paused {
		return domain.ErrAwaitingContinue
	}
	return nil
}

func (n *Navigator) navigateLocked(ctx context.Context, i int, now time.Time) {
	if open := n.base.OpenLabel; open != "" {
		n.emitLocked(ctx, domain.Action{Type: domain.ActionNavigateAway, ProblemLabel: open}, now)
	}
	if i >= len(n.cfg.Labels) {
		n.completeLocked(ctx, now)
		return
	}

	label := n.cfg.Labels[i]
	n.emitLocked(ctx, domain.Action{Type: domain.ActionOpenProblem, ProblemLabel: label}, now)
	n.state.CurrentIndex = i
	n.state.Visited[label] = true
	n.state.Paused = false
}

func (n *Navigator) completeLocked(ctx context.Context, now time.Time) {
	n.state.Complete = true
	n.state.Paused = false
	at := now
	n.state.CompletedAt = &at
	n.recomputeLocked(at)

	n.dispatchLocked(ctx, "completeRun", func(ctx context.Context) error {
		if err := n.backend.CompleteRun(ctx, n.cfg.RunID); err != nil {
			return err
		}
		// the lock orders the delete after the commit of the completing update
		n.mu.Lock()
		defer n.mu.Unlock()
		if err := n.store.Delete(ctx, n.cfg.RunID); err != nil {
			n.log.Warn().Err(err).Msg("drop saved navigation state failed")
		}
		return nil
	})
}

// emitLocked hands the action to the backend without waiting and appends it locally.
func (n *Navigator) emitLocked(ctx context.Context, action domain.Action, now time.Time) {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = now
	}
	action.ChallengeRunID = n.cfg.RunID
	action.UserID = n.cfg.UserID

	n.dispatchLocked(ctx, string(action.Type), func(ctx context.Context) error {
		return n.backend.RecordAction(ctx, n.cfg.RunID, action)
	})

	n.state.Actions = append(n.state.Actions, action)
	n.recomputeLocked(now)
}

// dispatchLocked runs a backend write in the background. Writes are chained so they
// reach the backend in emission order; failures are logged and never retried.
func (n *Navigator) dispatchLocked(ctx context.Context, name string, write func(context.Context) error) {
	prev := n.lastWrite
	done := make(chan struct{})
	n.lastWrite = done

	n.writes.Add(1)
	go func() {
		defer n.writes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := write(context.WithoutCancel(ctx)); err != nil {
			n.log.Warn().Err(err).Str("write", name).Msg("backend write failed")
		}
	}()
}

// recomputeLocked invalidates the timer cache by replaying the log, or the part of it
// recorded after a resumed baseline.
func (n *Navigator) recomputeLocked(now time.Time) {
	at := now
	if n.state.Complete && n.state.CompletedAt != nil {
		at = *n.state.CompletedAt
	}
	if n.seed != nil {
		n.base = n.seed.Replay(n.state.Actions[n.seedFrom:], at)
	} else {
		n.base = timing.Reconstruct(n.state.Actions, n.cfg.StartedAt, at, n.cfg.Labels)
	}
	n.state.Timers = n.base.Timers
	n.state.TotalTimePaused = n.base.TotalPaused
}

func (n *Navigator) commitLocked(ctx context.Context) {
	now := n.now()
	n.state.SavedAt = now
	if !n.state.Complete {
		// saved timers must match SavedAt so a resume can continue from them
		advanced := n.base.Advance(now)
		n.state.Timers = advanced.Timers
		n.state.TotalTimePaused = advanced.TotalPaused
	}
	if err := n.store.Save(ctx, n.state.Clone()); err != nil {
		n.log.Warn().Err(err).Msg("persist navigation state failed")
	}
	n.broadcastLocked(now)
}

func (n *Navigator) broadcastLocked(now time.Time) {
	if len(n.subscribers) == 0 {
		return
	}
	snap := n.snapshotLocked(now)
	for ch := range n.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the oldest queued snapshot so a slow reader never blocks the session
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (n *Navigator) snapshotLocked(now time.Time) Snapshot {
	timers, paused := n.state.Timers, n.state.TotalTimePaused
	if !n.state.Complete && n.opened {
		advanced := n.base.Advance(now)
		timers, paused = advanced.Timers, advanced.TotalPaused
	}
	state := n.state.Clone()

	statuses := make(map[string]domain.ProblemStatus, len(n.cfg.Labels))
	for _, label := range n.cfg.Labels {
		statuses[label] = domain.StatusOf(state.Responses[label])
	}
	copied := make(map[string]timing.ProblemTimer, len(timers))
	for k, v := range timers {
		copied[k] = v
	}

	return Snapshot{
		RunID:           n.cfg.RunID,
		Phase:           n.phaseLocked(),
		CurrentIndex:    state.CurrentIndex,
		CurrentLabel:    n.currentLabelLocked(),
		Labels:          append([]string(nil), n.cfg.Labels...),
		Timers:          copied,
		TotalTimePaused: paused,
		Statuses:        statuses,
		Responses:       state.Responses,
		SelectedAnswers: state.SelectedAnswers,
		Visited:         state.Visited,
		ShowAllProblems: state.ShowAllProblems,
		Preferences:     state.Preferences,
		ActionCount:     len(state.Actions),
		At:              now,
	}
}

func (n *Navigator) phaseLocked() Phase {
	switch {
	case n.state.Complete:
		return PhaseComplete
	case n.state.Paused:
		return PhasePaused
	default:
		return PhaseActive
	}
}

func (n *Navigator) currentLabelLocked() string {
	if n.state.CurrentIndex < 0 || n.state.CurrentIndex >= len(n.cfg.Labels) {
		return ""
	}
	return n.cfg.Labels[n.state.CurrentIndex]
}

func (n *Navigator) hasLabel(label string) bool {
	for _, l := range n.cfg.Labels {
		if l == label {
			return true
		}
	}
	return false
}
