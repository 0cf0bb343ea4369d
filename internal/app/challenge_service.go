package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/logging"
	"grindolympiads/internal/navigation"
)

const challengeProblemWindow = 10

// ChallengeService contains the challenge run use cases.
type ChallengeService struct {
	exams      ExamRepository
	challenges ChallengeRepository
	runs       RunRepository
	actions    ActionRepository
	details    ChallengeDetailsRepository
	now        func() time.Time
}

func NewChallengeService(exams ExamRepository, challenges ChallengeRepository, runs RunRepository, actions ActionRepository, details ChallengeDetailsRepository) *ChallengeService {
	return &ChallengeService{
		exams:      exams,
		challenges: challenges,
		runs:       runs,
		actions:    actions,
		details:    details,
		now:        time.Now,
	}
}

// WithClock is test-only for deterministic timestamps.
func (s *ChallengeService) WithClock(now func() time.Time) *ChallengeService {
	s.now = now
	return s
}

// ChallengeID is the id of the challenge built from an exam for a challenge type.
func ChallengeID(examID string, typ domain.ChallengeType) string {
	return examID + "-" + string(typ)
}

// StartChallenge creates (or reuses) the challenge for an exam and starts a fresh run
// seeded with a createChallengeRun action.
func (s *ChallengeService) StartChallenge(ctx context.Context, sess domain.Session, examID string, typ domain.ChallengeType) (domain.ChallengeRun, error) {
	log := logging.FromContext(ctx)
	if sess.UserID == "" {
		return domain.ChallengeRun{}, domain.ErrUnauthenticated
	}
	if !typ.Valid() {
		return domain.ChallengeRun{}, fmt.Errorf("%w: %q", domain.ErrInvalidChallengeType, typ)
	}

	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return domain.ChallengeRun{}, err
	}

	now := s.now()
	challengeID := ChallengeID(examID, typ)
	challenge, err := s.challenges.GetChallenge(ctx, challengeID)
	switch {
	case errors.Is(err, domain.ErrChallengeNotFound):
		challenge = buildChallenge(exam, typ, sess.UserID, now)
		if err := s.challenges.SaveChallenge(ctx, challenge); err != nil {
			return domain.ChallengeRun{}, fmt.Errorf("save challenge: %w", err)
		}
		log.Info().Str("challenge_id", challenge.ID).Int("problems", len(challenge.Problems)).Msg("challenge created")
	case err != nil:
		return domain.ChallengeRun{}, err
	}

	runID := challenge.ID + "_" + uuid.NewString()
	seed := domain.Action{
		ID:             uuid.NewString(),
		Type:           domain.ActionCreateChallengeRun,
		Timestamp:      now,
		ChallengeRunID: runID,
		UserID:         sess.UserID,
		Data: map[string]any{
			"challengeId":   challenge.ID,
			"examId":        examID,
			"challengeType": string(typ),
		},
	}
	run := domain.ChallengeRun{
		ID:        runID,
		Challenge: challenge,
		UserID:    sess.UserID,
		StartedAt: now,
		Responses: make(map[string][]domain.TimestampedResponse),
		Actions:   []domain.Action{seed},
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return domain.ChallengeRun{}, fmt.Errorf("create run: %w", err)
	}
	if err := s.actions.AppendAction(ctx, seed); err != nil {
		return domain.ChallengeRun{}, fmt.Errorf("append seed action: %w", err)
	}

	log.Info().Str("run_id", runID).Str("user_id", sess.UserID).Msg("challenge run started")
	return run, nil
}

// GetRun returns a run owned by the caller.
func (s *ChallengeService) GetRun(ctx context.Context, sess domain.Session, runID string) (domain.ChallengeRun, error) {
	if sess.UserID == "" {
		return domain.ChallengeRun{}, domain.ErrUnauthenticated
	}
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return domain.ChallengeRun{}, err
	}
	if run.UserID != sess.UserID {
		return domain.ChallengeRun{}, domain.ErrForbidden
	}
	return run, nil
}

// RecordAction appends one action to a run the caller owns and has not completed.
// A submitAnswer carrying an answer is also added to the run's responses.
func (s *ChallengeService) RecordAction(ctx context.Context, sess domain.Session, runID string, action domain.Action) error {
	run, err := s.GetRun(ctx, sess, runID)
	if err != nil {
		return err
	}
	if run.Completed() {
		return domain.ErrRunCompleted
	}
	if !action.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidAction, action.Type)
	}

	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = s.now()
	}
	action.ChallengeRunID = runID
	action.UserID = sess.UserID

	if err := s.actions.AppendAction(ctx, action); err != nil {
		return fmt.Errorf("append action: %w", err)
	}

	if action.Type == domain.ActionSubmitAnswer && action.ProblemLabel != "" {
		if answer, ok := action.Data["answer"].(string); ok && answer != "" {
			resp := domain.TimestampedResponse{Answer: answer, Timestamp: action.Timestamp.UnixMilli()}
			if err := s.runs.AppendResponse(ctx, runID, action.ProblemLabel, resp); err != nil {
				return fmt.Errorf("append response: %w", err)
			}
		}
	}

	logging.FromContext(ctx).Debug().
		Str("run_id", runID).
		Str("action", string(action.Type)).
		Str("problem", action.ProblemLabel).
		Msg("action recorded")
	return nil
}

// LoadActions returns the authoritative action log of a run the caller owns.
func (s *ChallengeService) LoadActions(ctx context.Context, sess domain.Session, runID string) ([]domain.Action, error) {
	if _, err := s.GetRun(ctx, sess, runID); err != nil {
		return nil, err
	}
	return s.actions.ListRunActions(ctx, runID)
}

// CompleteRun marks a run finished. Completing a finished run is a no-op.
func (s *ChallengeService) CompleteRun(ctx context.Context, sess domain.Session, runID string) error {
	run, err := s.GetRun(ctx, sess, runID)
	if err != nil {
		return err
	}
	if run.Completed() {
		return nil
	}
	if err := s.runs.CompleteRun(ctx, runID, s.now()); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	logging.FromContext(ctx).Info().Str("run_id", runID).Msg("challenge run completed")
	return nil
}

// GetChallengeDetails returns the challenge with its problems flattened.
func (s *ChallengeService) GetChallengeDetails(ctx context.Context, challengeID string) (domain.ChallengeDetails, error) {
	return s.details.GetChallengeDetails(ctx, challengeID)
}

// RefreshChallengeDetails drops any cached details of a challenge and rebuilds them
// from the current exam content. Admin only.
func (s *ChallengeService) RefreshChallengeDetails(ctx context.Context, sess domain.Session, challengeID string) (domain.ChallengeDetails, error) {
	if sess.UserID == "" {
		return domain.ChallengeDetails{}, domain.ErrUnauthenticated
	}
	if !sess.IsAdmin() {
		return domain.ChallengeDetails{}, domain.ErrAdminRequired
	}
	if cache, ok := s.details.(DetailsInvalidator); ok {
		if err := cache.Invalidate(ctx, challengeID); err != nil {
			return domain.ChallengeDetails{}, fmt.Errorf("invalidate challenge details: %w", err)
		}
	}
	details, err := s.details.GetChallengeDetails(ctx, challengeID)
	if err != nil {
		return domain.ChallengeDetails{}, err
	}
	logging.FromContext(ctx).Info().Str("challenge_id", challengeID).Str("admin_id", sess.UserID).Msg("challenge details refreshed")
	return details, nil
}

// NavigationBackend adapts the service to the navigation state machine for one caller.
func (s *ChallengeService) NavigationBackend(sess domain.Session) navigation.Backend {
	return &navigationBackend{svc: s, sess: sess}
}

type navigationBackend struct {
	svc  *ChallengeService
	sess domain.Session
}

func (b *navigationBackend) RecordAction(ctx context.Context, runID string, action domain.Action) error {
	return b.svc.RecordAction(ctx, b.sess, runID, action)
}

func (b *navigationBackend) LoadActions(ctx context.Context, runID string) ([]domain.Action, error) {
	return b.svc.LoadActions(ctx, b.sess, runID)
}

func (b *navigationBackend) CompleteRun(ctx context.Context, runID string) error {
	return b.svc.CompleteRun(ctx, b.sess, runID)
}

func buildChallenge(exam domain.Exam, typ domain.ChallengeType, createdBy string, now time.Time) domain.Challenge {
	problems := exam.Problems
	var name string
	switch typ {
	case domain.ChallengeFirstTen:
		if len(problems) > challengeProblemWindow {
			problems = problems[:challengeProblemWindow]
		}
		name = "First Ten Challenge for " + exam.Name
	case domain.ChallengeLastTen:
		if len(problems) > challengeProblemWindow {
			problems = problems[len(problems)-challengeProblemWindow:]
		}
		name = "Last Ten Challenge for " + exam.Name
	default:
		name = "Full Challenge for " + exam.Name
	}

	refs := make([]domain.ProblemRef, 0, len(problems))
	for _, p := range problems {
		refs = append(refs, domain.ProblemRef{Label: p.Label, ExamID: exam.ID, ProblemLabel: p.Label})
	}
	return domain.Challenge{
		ID:        ChallengeID(exam.ID, typ),
		Name:      name,
		Type:      typ,
		ExamIDs:   []string{exam.ID},
		Problems:  refs,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
}
