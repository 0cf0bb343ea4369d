package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/logging"
)

// AdminActionsResult is the admin review of one day of activity.
type AdminActionsResult struct {
	Actions       []domain.AnnotatedAction `json:"actions"`
	Users         []domain.User            `json:"users"`
	ChallengeRuns []domain.ChallengeRun    `json:"challengeRuns"`
}

// AdminService serves admin-only reporting.
type AdminService struct {
	users      UserRepository
	actions    ActionRepository
	runs       RunRepository
	challenges ChallengeRepository
	exams      ExamRepository
	loc        *time.Location
}

func NewAdminService(users UserRepository, actions ActionRepository, runs RunRepository, challenges ChallengeRepository, exams ExamRepository, loc *time.Location) *AdminService {
	if loc == nil {
		loc = time.UTC
	}
	return &AdminService{users: users, actions: actions, runs: runs, challenges: challenges, exams: exams, loc: loc}
}

// ParseDay parses a YYYY-MM-DD query date in the service's timezone.
func (s *AdminService) ParseDay(raw string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", raw, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidDate, raw)
	}
	return day, nil
}

// FetchActions returns the actions of the given day. Global actions are included one by
// one; a challenge run is included with its entire log as soon as any of its actions
// falls within the day. Only users with an in-day action are returned.
func (s *AdminService) FetchActions(ctx context.Context, sess domain.Session, date time.Time) (AdminActionsResult, error) {
	if err := s.requireAdmin(ctx, sess); err != nil {
		return AdminActionsResult{}, err
	}
	log := logging.FromContext(ctx)

	date = date.In(s.loc)
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	inDay := func(ts time.Time) bool {
		return !ts.Before(start) && !ts.After(end)
	}

	all, err := s.actions.ListActions(ctx)
	if err != nil {
		return AdminActionsResult{}, fmt.Errorf("list actions: %w", err)
	}

	var global []domain.Action
	runActions := make(map[string][]domain.Action)
	var runOrder []string
	validRuns := make(map[string]bool)
	activeUsers := make(map[string]bool)

	for _, a := range all {
		if a.Malformed() {
			log.Warn().Str("action_id", a.ID).Msg("skipping malformed action")
			continue
		}
		if a.ChallengeRunID == "" {
			if inDay(a.Timestamp) {
				global = append(global, a)
				if a.UserID != "" {
					activeUsers[a.UserID] = true
				}
			}
			continue
		}

		if _, ok := runActions[a.ChallengeRunID]; !ok {
			runOrder = append(runOrder, a.ChallengeRunID)
		}
		runActions[a.ChallengeRunID] = append(runActions[a.ChallengeRunID], a)
		if inDay(a.Timestamp) {
			validRuns[a.ChallengeRunID] = true
			if a.UserID != "" {
				activeUsers[a.UserID] = true
			}
		}
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return AdminActionsResult{}, fmt.Errorf("list users: %w", err)
	}
	userNames := make(map[string]string, len(users))
	for _, u := range users {
		userNames[u.ID] = u.Name
	}

	names := newRunNameResolver(s.challenges, s.exams)
	result := AdminActionsResult{
		Actions:       make([]domain.AnnotatedAction, 0, len(global)),
		Users:         make([]domain.User, 0),
		ChallengeRuns: make([]domain.ChallengeRun, 0),
	}
	for _, a := range global {
		result.Actions = append(result.Actions, domain.AnnotatedAction{Action: a, UserName: userNames[a.UserID]})
	}

	var validIDs []string
	for _, runID := range runOrder {
		if !validRuns[runID] {
			continue
		}
		validIDs = append(validIDs, runID)
		challengeName, examName := names.resolve(ctx, runID)
		for _, a := range runActions[runID] {
			result.Actions = append(result.Actions, domain.AnnotatedAction{
				Action:        a,
				UserName:      userNames[a.UserID],
				ChallengeName: challengeName,
				ExamName:      examName,
			})
		}
	}

	if len(validIDs) > 0 {
		runs, err := s.runs.GetRuns(ctx, validIDs)
		if err != nil {
			return AdminActionsResult{}, fmt.Errorf("get runs: %w", err)
		}
		result.ChallengeRuns = runs
	}

	for _, u := range users {
		if activeUsers[u.ID] {
			result.Users = append(result.Users, u)
		}
	}

	log.Info().
		Str("date", start.Format("2006-01-02")).
		Int("actions", len(result.Actions)).
		Int("runs", len(result.ChallengeRuns)).
		Int("users", len(result.Users)).
		Msg("admin actions fetched")
	return result, nil
}

func (s *AdminService) requireAdmin(ctx context.Context, sess domain.Session) error {
	if sess.UserID == "" {
		return domain.ErrUnauthenticated
	}
	user, err := s.users.GetUser(ctx, sess.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrAdminRequired
	}
	if err != nil {
		return err
	}
	if !user.IsAdmin {
		return domain.ErrAdminRequired
	}
	return nil
}

// ChallengeIDFromRunID strips the "_<suffix>" a run id carries after its challenge id.
func ChallengeIDFromRunID(runID string) string {
	if i := strings.LastIndex(runID, "_"); i > 0 {
		return runID[:i]
	}
	return runID
}

type runNames struct {
	challenge string
	exam      string
}

// runNameResolver memoizes challenge and exam names per challenge id.
type runNameResolver struct {
	challenges ChallengeRepository
	exams      ExamRepository
	cache      map[string]runNames
}

func newRunNameResolver(challenges ChallengeRepository, exams ExamRepository) *runNameResolver {
	return &runNameResolver{challenges: challenges, exams: exams, cache: make(map[string]runNames)}
}

func (r *runNameResolver) resolve(ctx context.Context, runID string) (string, string) {
	challengeID := ChallengeIDFromRunID(runID)
	if names, ok := r.cache[challengeID]; ok {
		return names.challenge, names.exam
	}

	var names runNames
	challenge, err := r.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("challenge_id", challengeID).Msg("resolve challenge name")
	} else {
		names.challenge = challenge.Name
		if len(challenge.ExamIDs) > 0 {
			exam, err := r.exams.GetExam(ctx, challenge.ExamIDs[0])
			if err != nil {
				logging.FromContext(ctx).Warn().Err(err).Str("exam_id", challenge.ExamIDs[0]).Msg("resolve exam name")
			} else {
				names.exam = exam.Name
			}
		}
	}
	r.cache[challengeID] = names
	return names.challenge, names.exam
}
