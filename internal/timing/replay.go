// Package timing reconstructs per-problem thinking time from a run's action log.
package timing

import (
	"sort"
	"time"

	"grindolympiads/internal/domain"
)

// ProblemTimer holds the pre-submission and post-submission time spent on a problem.
type ProblemTimer struct {
	FirstTimer       time.Duration `json:"firstTimer"`
	SecondTimer      time.Duration `json:"secondTimer"`
	FirstTimerLocked bool          `json:"firstTimerLocked"`
}

// Total is the time spent on the problem across both phases.
func (t ProblemTimer) Total() time.Duration {
	return t.FirstTimer + t.SecondTimer
}

// Result is the outcome of replaying an action log up to a moment in time.
type Result struct {
	Timers      map[string]ProblemTimer `json:"problemTimers"`
	TotalPaused time.Duration           `json:"totalTimePaused"`
	// OpenLabel is the problem open at the end of the replay, empty when paused.
	OpenLabel string `json:"openLabel,omitempty"`
	// LastActionAt is the timestamp of the last replayed action, or the start time.
	LastActionAt time.Time `json:"lastActionAt"`
	// ComputedAt is the moment the replay was evaluated at.
	ComputedAt time.Time `json:"computedAt"`
}

// Reconstruct replays actions against startedAt and attributes every interval up to now
// either to the open problem's active phase or to the pause accumulator. Actions are
// sorted by timestamp; equal timestamps keep their log order.
func Reconstruct(actions []domain.Action, startedAt, now time.Time, labels []string) Result {
	start := Result{
		Timers:       make(map[string]ProblemTimer, len(labels)),
		LastActionAt: startedAt,
		ComputedAt:   startedAt,
	}
	for _, label := range labels {
		start.Timers[label] = ProblemTimer{}
	}
	return start.Replay(actions, now)
}

// Replay folds actions onto r, starting the clock at r.ComputedAt. It lets a session
// continue from saved timers without the history that produced them.
func (r Result) Replay(actions []domain.Action, now time.Time) Result {
	res := r.clone()
	cursor := r.ComputedAt

	sorted := make([]domain.Action, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for _, action := range sorted {
		res.accrue(action.Timestamp.Sub(cursor))

		switch action.Type {
		case domain.ActionOpenProblem:
			res.OpenLabel = action.ProblemLabel
		case domain.ActionSubmitAnswer:
			if res.OpenLabel != "" {
				timer := res.Timers[res.OpenLabel]
				timer.FirstTimerLocked = true
				res.Timers[res.OpenLabel] = timer
			}
		case domain.ActionNavigateAway:
			res.OpenLabel = ""
		}
		cursor = action.Timestamp
		res.LastActionAt = action.Timestamp
	}

	res.accrue(now.Sub(cursor))
	res.ComputedAt = now
	return res
}

// Advance returns a copy of r with the running timer moved forward to now. It never
// replays the log: the open problem (or the pause accumulator) receives now - ComputedAt.
func (r Result) Advance(now time.Time) Result {
	out := r.clone()
	out.accrue(now.Sub(r.ComputedAt))
	out.ComputedAt = now
	return out
}

// Elapsed is the total time covered by the result.
func (r Result) Elapsed() time.Duration {
	total := r.TotalPaused
	for _, t := range r.Timers {
		total += t.Total()
	}
	return total
}

func (r *Result) accrue(delta time.Duration) {
	if r.OpenLabel == "" {
		r.TotalPaused += delta
		return
	}
	timer := r.Timers[r.OpenLabel]
	if timer.FirstTimerLocked {
		timer.SecondTimer += delta
	} else {
		timer.FirstTimer += delta
	}
	r.Timers[r.OpenLabel] = timer
}

func (r Result) clone() Result {
	out := r
	out.Timers = make(map[string]ProblemTimer, len(r.Timers))
	for k, v := range r.Timers {
		out.Timers[k] = v
	}
	return out
}
