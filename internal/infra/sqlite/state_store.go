// Package sqlite keeps navigation state in a local SQLite file for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/navigation"
)

var sqlBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

const schema = `
CREATE TABLE IF NOT EXISTS navigation_states (
	run_id     TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	complete   INTEGER NOT NULL DEFAULT 0,
	saved_at   DATETIME NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// StateStore is a navigation.StateStore backed by SQLite.
type StateStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for a throwaway store.
func Open(path string) (*StateStore, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	log.Info().Str("path", path).Msg("opening navigation state database")

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // single writer

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create navigation_states: %w", err)
	}
	return &StateStore{db: db}, nil
}

func (s *StateStore) Load(ctx context.Context, runID string) (navigation.State, error) {
	query, args, err := sqlBuilder.Select("state").From("navigation_states").Where(squirrel.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return navigation.State{}, err
	}

	var raw string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return navigation.State{}, domain.ErrStateNotFound
	}
	if err != nil {
		return navigation.State{}, fmt.Errorf("load navigation state: %w", err)
	}

	var state navigation.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return navigation.State{}, fmt.Errorf("decode navigation state: %w", err)
	}
	return state, nil
}

func (s *StateStore) Save(ctx context.Context, state navigation.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode navigation state: %w", err)
	}

	query, args, err := sqlBuilder.Insert("navigation_states").
		Columns("run_id", "state", "complete", "saved_at").
		Values(state.RunID, string(payload), state.Complete, state.SavedAt.UTC()).
		Suffix(`ON CONFLICT(run_id) DO UPDATE SET state = excluded.state, complete = excluded.complete,
saved_at = excluded.saved_at, updated_at = CURRENT_TIMESTAMP`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save navigation state: %w", err)
	}
	return nil
}

// Delete forgets the saved state of a run.
func (s *StateStore) Delete(ctx context.Context, runID string) error {
	query, args, err := sqlBuilder.Delete("navigation_states").Where(squirrel.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// CountIncomplete reports how many runs have saved state but are not complete.
func (s *StateStore) CountIncomplete(ctx context.Context) (int, error) {
	query, args, err := sqlBuilder.Select("COUNT(*)").From("navigation_states").Where(squirrel.Eq{"complete": false}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (s *StateStore) Close() error {
	return s.db.Close()
}
