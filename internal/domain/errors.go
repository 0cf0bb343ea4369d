package domain

import "errors"

var (
	// ErrExamNotFound indicates the exam content could not be loaded.
	ErrExamNotFound = errors.New("exam not found")
	// ErrChallengeNotFound is returned when a challenge id does not resolve.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrRunNotFound is returned when a challenge run does not exist.
	ErrRunNotFound = errors.New("challenge run not found")
	// ErrUserNotFound is returned when a user profile does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrStateNotFound is returned by saved-state stores when nothing was persisted for a run.
	ErrStateNotFound = errors.New("saved navigation state not found")
	// ErrProblemNotFound indicates a challenge references a problem its exam does not have.
	ErrProblemNotFound = errors.New("problem not found")

	// ErrForbidden is returned when the caller does not own the run they act on.
	ErrForbidden = errors.New("challenge run belongs to another user")
	// ErrAdminRequired is returned when a non-admin calls an admin operation.
	ErrAdminRequired = errors.New("admin access required")
	// ErrUnauthenticated is returned when no caller identity is present.
	ErrUnauthenticated = errors.New("caller identity required")

	// ErrRunCompleted is returned when recording into a finished run.
	ErrRunCompleted = errors.New("challenge run already completed")
	// ErrInvalidAction indicates an action with an unknown type or missing fields.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInvalidChallengeType indicates an unsupported challenge type.
	ErrInvalidChallengeType = errors.New("invalid challenge type")
	// ErrInvalidDate indicates an unparsable admin query date.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidProblemIndex is returned for negative navigation targets.
	ErrInvalidProblemIndex = errors.New("invalid problem index")
	// ErrNotPaused is returned when continuing a session that is not paused.
	ErrNotPaused = errors.New("navigation is not paused")
	// ErrAwaitingContinue is returned when acting while paused after a submission.
	ErrAwaitingContinue = errors.New("navigation paused after submission")
	// ErrSessionComplete is returned when acting on a completed navigation session.
	ErrSessionComplete = errors.New("navigation session already complete")
	// ErrEmptyAnswer is returned when submitting a blank answer.
	ErrEmptyAnswer = errors.New("answer must not be empty")
)
