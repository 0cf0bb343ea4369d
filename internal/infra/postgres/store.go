// Package postgres stores exams, challenges, runs, actions and users in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"grindolympiads/internal/domain"
)

var sqlBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var actionColumns = []string{"id", "type", "ts", "challenge_run_id", "problem_label", "user_id", "data"}

// Store implements the app repositories on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) SaveExam(ctx context.Context, exam domain.Exam) error {
	return s.upsertDocument(ctx, "exams", exam.ID, exam)
}

func (s *Store) GetExam(ctx context.Context, id string) (domain.Exam, error) {
	var exam domain.Exam
	if err := s.loadDocument(ctx, "exams", id, &exam); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Exam{}, domain.ErrExamNotFound
		}
		return domain.Exam{}, fmt.Errorf("load exam: %w", err)
	}
	return exam, nil
}

func (s *Store) SaveChallenge(ctx context.Context, challenge domain.Challenge) error {
	return s.upsertDocument(ctx, "challenges", challenge.ID, challenge)
}

func (s *Store) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	var challenge domain.Challenge
	if err := s.loadDocument(ctx, "challenges", id, &challenge); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Challenge{}, domain.ErrChallengeNotFound
		}
		return domain.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	return challenge, nil
}

func (s *Store) CreateRun(ctx context.Context, run domain.ChallengeRun) error {
	challenge, err := json.Marshal(run.Challenge)
	if err != nil {
		return err
	}
	responses := run.Responses
	if responses == nil {
		responses = map[string][]domain.TimestampedResponse{}
	}
	rawResponses, err := json.Marshal(responses)
	if err != nil {
		return err
	}

	query, args, err := sqlBuilder.Insert("challenge_runs").
		Columns("id", "challenge_id", "user_id", "challenge", "started_at", "completed_at", "responses").
		Values(run.ID, run.Challenge.ID, run.UserID, challenge, run.StartedAt, run.CompletedAt, rawResponses).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

func (s *Store) GetRun(ctx context.Context, id string) (domain.ChallengeRun, error) {
	runs, err := s.GetRuns(ctx, []string{id})
	if err != nil {
		return domain.ChallengeRun{}, err
	}
	if len(runs) == 0 {
		return domain.ChallengeRun{}, domain.ErrRunNotFound
	}
	return runs[0], nil
}

// GetRuns returns the runs that exist among ids, each with its action log.
func (s *Store) GetRuns(ctx context.Context, ids []string) ([]domain.ChallengeRun, error) {
	if len(ids) == 0 {
		return []domain.ChallengeRun{}, nil
	}
	query, args, err := sqlBuilder.
		Select("id", "user_id", "challenge", "started_at", "completed_at", "responses").
		From("challenge_runs").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("started_at").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.ChallengeRun, 0, len(ids))
	for rows.Next() {
		var (
			run          domain.ChallengeRun
			rawChallenge []byte
			rawResponses []byte
		)
		if err := rows.Scan(&run.ID, &run.UserID, &rawChallenge, &run.StartedAt, &run.CompletedAt, &rawResponses); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawChallenge, &run.Challenge); err != nil {
			return nil, fmt.Errorf("decode run challenge: %w", err)
		}
		if err := json.Unmarshal(rawResponses, &run.Responses); err != nil {
			return nil, fmt.Errorf("decode run responses: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	actions, err := s.listActions(ctx, squirrel.Eq{"challenge_run_id": ids})
	if err != nil {
		return nil, err
	}
	byRun := make(map[string][]domain.Action, len(runs))
	for _, a := range actions {
		byRun[a.ChallengeRunID] = append(byRun[a.ChallengeRunID], a)
	}
	for i := range runs {
		runs[i].Actions = byRun[runs[i].ID]
		if runs[i].Actions == nil {
			runs[i].Actions = []domain.Action{}
		}
	}
	return runs, nil
}

// CompleteRun sets completed_at once; later calls keep the first timestamp.
func (s *Store) CompleteRun(ctx context.Context, id string, at time.Time) error {
	query, args, err := sqlBuilder.Update("challenge_runs").
		Set("completed_at", squirrel.Expr("COALESCE(completed_at, ?)", at)).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (s *Store) AppendResponse(ctx context.Context, runID, label string, response domain.TimestampedResponse) error {
	raw, err := json.Marshal([]domain.TimestampedResponse{response})
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE challenge_runs
SET responses = jsonb_set(responses, ARRAY[$2::text], COALESCE(responses->$2, '[]'::jsonb) || $3::jsonb)
WHERE id = $1`, runID, label, raw)
	if err != nil {
		return fmt.Errorf("append response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// AppendAction inserts one action. Re-sending an action id is ignored.
func (s *Store) AppendAction(ctx context.Context, action domain.Action) error {
	var data []byte
	if action.Data != nil {
		raw, err := json.Marshal(action.Data)
		if err != nil {
			return err
		}
		data = raw
	}
	query, args, err := sqlBuilder.Insert("actions").
		Columns(actionColumns...).
		Values(action.ID, string(action.Type), action.Timestamp, action.ChallengeRunID, action.ProblemLabel, action.UserID, data).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

func (s *Store) ListRunActions(ctx context.Context, runID string) ([]domain.Action, error) {
	return s.listActions(ctx, squirrel.Eq{"challenge_run_id": runID})
}

func (s *Store) ListActions(ctx context.Context) ([]domain.Action, error) {
	return s.listActions(ctx, nil)
}

func (s *Store) listActions(ctx context.Context, where squirrel.Sqlizer) ([]domain.Action, error) {
	builder := sqlBuilder.Select(actionColumns...).From("actions").OrderBy("seq")
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	actions := make([]domain.Action, 0)
	for rows.Next() {
		var (
			a    domain.Action
			typ  string
			data []byte
		)
		if err := rows.Scan(&a.ID, &typ, &a.Timestamp, &a.ChallengeRunID, &a.ProblemLabel, &a.UserID, &data); err != nil {
			return nil, err
		}
		a.Type = domain.ActionType(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &a.Data); err != nil {
				return nil, fmt.Errorf("decode action %s: %w", a.ID, err)
			}
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *Store) SaveUser(ctx context.Context, user domain.User) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query, args, err := sqlBuilder.Insert("users").
		Columns("id", "name", "email", "is_admin", "created_at").
		Values(user.ID, user.Name, user.Email, user.IsAdmin, createdAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, is_admin = EXCLUDED.is_admin").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	users, err := s.listUsers(ctx, squirrel.Eq{"id": id})
	if err != nil {
		return domain.User{}, err
	}
	if len(users) == 0 {
		return domain.User{}, domain.ErrUserNotFound
	}
	return users[0], nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.listUsers(ctx, nil)
}

func (s *Store) listUsers(ctx context.Context, where squirrel.Sqlizer) ([]domain.User, error) {
	builder := sqlBuilder.Select("id", "name", "email", "is_admin", "created_at").From("users").OrderBy("id")
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) upsertDocument(ctx context.Context, table, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	query, args, err := sqlBuilder.Insert(table).
		Columns("id", "data").
		Values(id, raw).
		Suffix("ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

func (s *Store) loadDocument(ctx context.Context, table, id string, out any) error {
	query, args, err := sqlBuilder.Select("data").From(table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	var raw []byte
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
