package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grindolympiads/internal/domain"
)

func TestStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrRunNotFound)

	require.NoError(t, store.CreateRun(ctx, domain.ChallengeRun{ID: "c_1", UserID: "u1", StartedAt: start}))
	require.NoError(t, store.AppendAction(ctx, domain.Action{ID: "a1", Type: domain.ActionOpenTest, Timestamp: start, ChallengeRunID: "c_1"}))
	require.NoError(t, store.AppendAction(ctx, domain.Action{ID: "g1", Type: domain.ActionOpenTest, Timestamp: start}))
	require.NoError(t, store.AppendAction(ctx, domain.Action{ID: "a2", Type: domain.ActionOpenProblem, Timestamp: start, ChallengeRunID: "c_1", ProblemLabel: "1"}))
	require.NoError(t, store.AppendResponse(ctx, "c_1", "1", domain.TimestampedResponse{Answer: "B", Timestamp: start.UnixMilli()}))

	run, err := store.GetRun(ctx, "c_1")
	require.NoError(t, err)
	require.Len(t, run.Actions, 2)
	assert.Equal(t, "a1", run.Actions[0].ID)
	assert.Equal(t, "a2", run.Actions[1].ID)
	assert.Equal(t, "B", run.Responses["1"][0].Answer)
	assert.False(t, run.Completed())

	first := start.Add(time.Hour)
	require.NoError(t, store.CompleteRun(ctx, "c_1", first))
	require.NoError(t, store.CompleteRun(ctx, "c_1", first.Add(time.Hour)))
	run, err = store.GetRun(ctx, "c_1")
	require.NoError(t, err)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, first, *run.CompletedAt)

	all, err := store.ListActions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	runs, err := store.GetRuns(ctx, []string{"c_1", "missing"})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStoreLookupsReturnSentinels(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.GetExam(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrExamNotFound)
	_, err = store.GetChallenge(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	_, err = store.GetUser(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, store.CompleteRun(ctx, "x", time.Now()), domain.ErrRunNotFound)
	assert.ErrorIs(t, store.AppendResponse(ctx, "x", "1", domain.TimestampedResponse{}), domain.ErrRunNotFound)

	require.NoError(t, store.SaveUser(ctx, domain.User{ID: "b"}))
	require.NoError(t, store.SaveUser(ctx, domain.User{ID: "a"}))
	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].ID)
}

func TestStoreAppendActionIgnoresResentIDs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRun(ctx, domain.ChallengeRun{ID: "c_1", UserID: "u1", StartedAt: at}))

	first := domain.Action{ID: "a1", Type: domain.ActionOpenProblem, Timestamp: at, ChallengeRunID: "c_1", ProblemLabel: "1"}
	require.NoError(t, store.AppendAction(ctx, first))
	resent := first
	resent.ProblemLabel = "2"
	require.NoError(t, store.AppendAction(ctx, resent))
	require.NoError(t, store.AppendAction(ctx, domain.Action{ID: "a2", Type: domain.ActionNavigateAway, Timestamp: at.Add(time.Second), ChallengeRunID: "c_1", ProblemLabel: "1"}))

	actions, err := store.ListRunActions(ctx, "c_1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "1", actions[0].ProblemLabel)
	assert.Equal(t, "a2", actions[1].ID)

	all, err := store.ListActions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
