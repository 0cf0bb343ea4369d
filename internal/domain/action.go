package domain

import "time"

// ActionType enumerates the user interactions recorded during a challenge run.
type ActionType string

const (
	ActionCreateChallengeRun ActionType = "createChallengeRun"
	ActionOpenProblem        ActionType = "openProblem"
	ActionNavigateAway       ActionType = "navigateAway"
	ActionSubmitAnswer       ActionType = "submitAnswer"
	ActionSkipProblem        ActionType = "skipProblem"
	ActionGuessAnswer        ActionType = "guessAnswer"
	ActionOpenTest           ActionType = "openTest"
	ActionLoadSavedState     ActionType = "loadSavedState"
	ActionViewAllProblems    ActionType = "viewAllProblems"
	ActionViewSingleProblem  ActionType = "viewSingleProblem"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCreateChallengeRun, ActionOpenProblem, ActionNavigateAway, ActionSubmitAnswer,
		ActionSkipProblem, ActionGuessAnswer, ActionOpenTest, ActionLoadSavedState,
		ActionViewAllProblems, ActionViewSingleProblem:
		return true
	}
	return false
}

// Action is an immutable, timestamped record of a user interaction.
// Actions without a ProblemLabel are global.
type Action struct {
	ID             string         `json:"id,omitempty"`
	Type           ActionType     `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	ChallengeRunID string         `json:"challengeRunId,omitempty"`
	ProblemLabel   string         `json:"problemLabel,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// Malformed reports whether a stored action lacks the fields needed to process it.
func (a Action) Malformed() bool {
	return a.Type == "" || a.Timestamp.IsZero()
}

// AnnotatedAction is an action enriched with denormalized names for admin review.
type AnnotatedAction struct {
	Action
	UserName      string `json:"userName,omitempty"`
	ChallengeName string `json:"challengeName,omitempty"`
	ExamName      string `json:"examName,omitempty"`
}
