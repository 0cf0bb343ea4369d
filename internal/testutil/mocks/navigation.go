// Package mocks holds testify mocks shared by package tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/navigation"
)

// Backend mocks navigation.Backend.
type Backend struct {
	mock.Mock
}

func (m *Backend) RecordAction(ctx context.Context, runID string, action domain.Action) error {
	args := m.Called(ctx, runID, action)
	return args.Error(0)
}

func (m *Backend) LoadActions(ctx context.Context, runID string) ([]domain.Action, error) {
	args := m.Called(ctx, runID)
	if actions, ok := args.Get(0).([]domain.Action); ok {
		return actions, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Backend) CompleteRun(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

// RecordedActions returns the actions passed to RecordAction, in call order.
func (m *Backend) RecordedActions() []domain.Action {
	var out []domain.Action
	for _, call := range m.Calls {
		if call.Method == "RecordAction" {
			out = append(out, call.Arguments.Get(2).(domain.Action))
		}
	}
	return out
}

// StateStore mocks navigation.StateStore.
type StateStore struct {
	mock.Mock
}

func (m *StateStore) Load(ctx context.Context, runID string) (navigation.State, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(navigation.State), args.Error(1)
}

func (m *StateStore) Save(ctx context.Context, state navigation.State) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *StateStore) Delete(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}
