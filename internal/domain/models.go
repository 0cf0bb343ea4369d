package domain

import "time"

// Problem is a single competition problem within an exam.
type Problem struct {
	Label     string   `json:"label"`
	Statement string   `json:"statement"`
	Choices   []string `json:"choices,omitempty"`
	Answer    string   `json:"answer,omitempty"`
}

// Exam is a published competition paper, e.g. "2020 AMC 10A".
type Exam struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Competition string    `json:"competition"`
	Year        int       `json:"year"`
	Problems    []Problem `json:"problems"`
}

// Problem returns the problem with the given label.
func (e Exam) Problem(label string) (Problem, bool) {
	for _, p := range e.Problems {
		if p.Label == label {
			return p, true
		}
	}
	return Problem{}, false
}

// ChallengeType selects which problems of an exam a challenge contains.
type ChallengeType string

const (
	ChallengeFull     ChallengeType = "full"
	ChallengeFirstTen ChallengeType = "firstTen"
	ChallengeLastTen  ChallengeType = "lastTen"
)

// Valid reports whether t is a supported challenge type.
func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeFull, ChallengeFirstTen, ChallengeLastTen:
		return true
	}
	return false
}

// ProblemRef points a challenge problem label at a problem of an exam.
type ProblemRef struct {
	Label        string `json:"label"`
	ExamID       string `json:"examId"`
	ProblemLabel string `json:"problemLabel"`
}

// Challenge is a named, reusable set of problems.
type Challenge struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      ChallengeType `json:"type"`
	ExamIDs   []string      `json:"examIds"`
	Problems  []ProblemRef  `json:"problems"`
	CreatedBy string        `json:"createdBy,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Labels returns the challenge's problem labels in navigation order.
func (c Challenge) Labels() []string {
	labels := make([]string, 0, len(c.Problems))
	for _, p := range c.Problems {
		labels = append(labels, p.Label)
	}
	return labels
}

// ProblemDetail is a challenge problem flattened together with its exam content.
type ProblemDetail struct {
	Label     string   `json:"label"`
	ExamID    string   `json:"examId"`
	ExamName  string   `json:"examName"`
	Number    string   `json:"number"`
	Statement string   `json:"statement"`
	Choices   []string `json:"choices,omitempty"`
}

// ChallengeDetails is the normalized view of a challenge used when resuming a run.
type ChallengeDetails struct {
	Challenge
	Problems []ProblemDetail `json:"problemDetails"`
}

// User is a stored user profile.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session carries the caller's identity explicitly through the use cases.
type Session struct {
	UserID  string
	Profile *User
}

// IsAdmin reports whether the caller's stored profile carries the admin flag.
func (s Session) IsAdmin() bool {
	return s.Profile != nil && s.Profile.IsAdmin
}
