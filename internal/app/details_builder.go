package app

import (
	"context"
	"fmt"

	"grindolympiads/internal/domain"
)

// DetailsBuilder resolves a challenge's problem references against their exams.
type DetailsBuilder struct {
	challenges ChallengeRepository
	exams      ExamRepository
}

func NewDetailsBuilder(challenges ChallengeRepository, exams ExamRepository) *DetailsBuilder {
	return &DetailsBuilder{challenges: challenges, exams: exams}
}

// LoadChallengeDetails flattens every problem of the challenge into a ProblemDetail.
func (b *DetailsBuilder) LoadChallengeDetails(ctx context.Context, challengeID string) (domain.ChallengeDetails, error) {
	challenge, err := b.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return domain.ChallengeDetails{}, err
	}

	exams := make(map[string]domain.Exam, len(challenge.ExamIDs))
	details := domain.ChallengeDetails{
		Challenge: challenge,
		Problems:  make([]domain.ProblemDetail, 0, len(challenge.Problems)),
	}
	for _, ref := range challenge.Problems {
		exam, ok := exams[ref.ExamID]
		if !ok {
			exam, err = b.exams.GetExam(ctx, ref.ExamID)
			if err != nil {
				return domain.ChallengeDetails{}, fmt.Errorf("challenge %s: %w", challengeID, err)
			}
			exams[ref.ExamID] = exam
		}
		problem, ok := exam.Problem(ref.ProblemLabel)
		if !ok {
			return domain.ChallengeDetails{}, fmt.Errorf("%w: %s/%s", domain.ErrProblemNotFound, ref.ExamID, ref.ProblemLabel)
		}
		details.Problems = append(details.Problems, domain.ProblemDetail{
			Label:     ref.Label,
			ExamID:    exam.ID,
			ExamName:  exam.Name,
			Number:    problem.Label,
			Statement: problem.Statement,
			Choices:   problem.Choices,
		})
	}
	return details, nil
}

// GetChallengeDetails serves details without caching.
func (b *DetailsBuilder) GetChallengeDetails(ctx context.Context, challengeID string) (domain.ChallengeDetails, error) {
	return b.LoadChallengeDetails(ctx, challengeID)
}
