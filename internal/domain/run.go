package domain

import "time"

// TimestampedResponse is one submitted answer; Timestamp is epoch milliseconds.
type TimestampedResponse struct {
	Answer    string `json:"answer"`
	Timestamp int64  `json:"timestamp"`
}

// ProblemStatus is derived from a problem's response history.
type ProblemStatus string

const (
	StatusUnattempted ProblemStatus = "unattempted"
	StatusAnswered    ProblemStatus = "answered"
	StatusConfirmed   ProblemStatus = "confirmed"
	StatusConflicting ProblemStatus = "conflicting"
)

// StatusOf derives the status of a problem from its ordered responses.
func StatusOf(responses []TimestampedResponse) ProblemStatus {
	switch n := len(responses); {
	case n == 0:
		return StatusUnattempted
	case n == 1:
		return StatusAnswered
	case responses[n-1].Answer == responses[n-2].Answer:
		return StatusConfirmed
	default:
		return StatusConflicting
	}
}

// ChallengeRun is one user's timed attempt at a challenge.
type ChallengeRun struct {
	ID          string                           `json:"id"`
	Challenge   Challenge                        `json:"challenge"`
	UserID      string                           `json:"userId"`
	StartedAt   time.Time                        `json:"startedAt"`
	CompletedAt *time.Time                       `json:"completedAt"`
	Responses   map[string][]TimestampedResponse `json:"responses"`
	Actions     []Action                         `json:"actions"`
}

// Completed reports whether the run reached its terminal state.
func (r ChallengeRun) Completed() bool {
	return r.CompletedAt != nil
}
