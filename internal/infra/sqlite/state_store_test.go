package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/navigation"
	"grindolympiads/internal/timing"
)

func newTestStore(t *testing.T) *StateStore {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestStateStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "run-1")
	require.ErrorIs(t, err, domain.ErrStateNotFound)

	savedAt := time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC)
	state := navigation.State{
		RunID:           "run-1",
		CurrentIndex:    2,
		SelectedAnswers: map[string]string{"3": "D"},
		Timers:          map[string]timing.ProblemTimer{"1": {FirstTimer: 12 * time.Second, SecondTimer: time.Second, FirstTimerLocked: true}},
		ShowAllProblems: true,
		SavedAt:         savedAt,
	}
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.CurrentIndex)
	assert.Equal(t, "D", loaded.SelectedAnswers["3"])
	assert.Equal(t, state.Timers, loaded.Timers)
	assert.True(t, loaded.ShowAllProblems)
	assert.True(t, loaded.SavedAt.Equal(savedAt))
}

func TestStateStoreSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, navigation.State{RunID: "run-1", CurrentIndex: 0}))
	require.NoError(t, store.Save(ctx, navigation.State{RunID: "run-2", CurrentIndex: 0}))
	n, err := store.CountIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Save(ctx, navigation.State{RunID: "run-1", CurrentIndex: 4, Complete: true}))
	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.CurrentIndex)
	assert.True(t, loaded.Complete)

	n, err = store.CountIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Delete(ctx, "run-2"))
	_, err = store.Load(ctx, "run-2")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}
