package app

import (
	"context"
	"time"

	"grindolympiads/internal/domain"
)

// ExamRepository loads exam content.
type ExamRepository interface {
	GetExam(ctx context.Context, id string) (domain.Exam, error)
}

// ChallengeRepository stores reusable challenges.
type ChallengeRepository interface {
	GetChallenge(ctx context.Context, id string) (domain.Challenge, error)
	SaveChallenge(ctx context.Context, challenge domain.Challenge) error
}

// RunRepository stores challenge runs. GetRun and GetRuns return runs with their actions.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.ChallengeRun) error
	GetRun(ctx context.Context, id string) (domain.ChallengeRun, error)
	GetRuns(ctx context.Context, ids []string) ([]domain.ChallengeRun, error)
	CompleteRun(ctx context.Context, id string, at time.Time) error
	AppendResponse(ctx context.Context, runID, label string, response domain.TimestampedResponse) error
}

// ActionRepository is the append-only action log, ordered by insertion.
type ActionRepository interface {
	AppendAction(ctx context.Context, action domain.Action) error
	ListRunActions(ctx context.Context, runID string) ([]domain.Action, error)
	ListActions(ctx context.Context) ([]domain.Action, error)
}

// UserRepository loads stored user profiles.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// ChallengeDetailsRepository serves flattened challenge details (usually cached).
type ChallengeDetailsRepository interface {
	GetChallengeDetails(ctx context.Context, challengeID string) (domain.ChallengeDetails, error)
}

// DetailsInvalidator is implemented by details caches that can drop an entry.
type DetailsInvalidator interface {
	Invalidate(ctx context.Context, challengeID string) error
}
