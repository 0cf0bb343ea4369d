package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grindolympiads/internal/app"
	"grindolympiads/internal/domain"
	"grindolympiads/internal/infra/memory"
)

func TestLoadChallengeDetailsAcrossExams(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SaveExam(ctx, sampleExam("a", 3)))
	require.NoError(t, store.SaveExam(ctx, domain.Exam{ID: "b", Name: "AIME I 2023", Problems: []domain.Problem{{Label: "7", Statement: "Find n."}}}))
	require.NoError(t, store.SaveChallenge(ctx, domain.Challenge{
		ID:      "mix",
		ExamIDs: []string{"a", "b"},
		Problems: []domain.ProblemRef{
			{Label: "1", ExamID: "a", ProblemLabel: "3"},
			{Label: "2", ExamID: "b", ProblemLabel: "7"},
		},
	}))

	details, err := app.NewDetailsBuilder(store, store).LoadChallengeDetails(ctx, "mix")
	require.NoError(t, err)
	require.Len(t, details.Problems, 2)
	assert.Equal(t, "1", details.Problems[0].Label)
	assert.Equal(t, "3", details.Problems[0].Number)
	assert.Equal(t, "AIME I 2023", details.Problems[1].ExamName)
	assert.Equal(t, "Find n.", details.Problems[1].Statement)
}

func TestLoadChallengeDetailsMissingProblem(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SaveExam(ctx, sampleExam("a", 3)))
	require.NoError(t, store.SaveChallenge(ctx, domain.Challenge{
		ID:       "broken",
		Problems: []domain.ProblemRef{{Label: "1", ExamID: "a", ProblemLabel: "99"}},
	}))

	_, err := app.NewDetailsBuilder(store, store).LoadChallengeDetails(ctx, "broken")
	assert.ErrorIs(t, err, domain.ErrProblemNotFound)
}
