package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"grindolympiads/internal/domain"
)

type startChallengeRequest struct {
	ExamID        string               `json:"examId"`
	ChallengeType domain.ChallengeType `json:"challengeType"`
}

func (s *Server) handleStartChallenge(w http.ResponseWriter, r *http.Request) {
	var req startChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, r, badRequest("invalid request body"))
		return
	}
	if req.ExamID == "" {
		handleError(w, r, badRequest("examId is required"))
		return
	}
	if req.ChallengeType == "" {
		req.ChallengeType = domain.ChallengeFull
	}

	run, err := s.challenges.StartChallenge(r.Context(), sessionFromContext(r.Context()), req.ExamID, req.ChallengeType)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleChallengeDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.challenges.GetChallengeDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.challenges.GetRun(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRecordAction(w http.ResponseWriter, r *http.Request) {
	var action domain.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		handleError(w, r, badRequest("invalid action body"))
		return
	}
	if err := s.challenges.RecordAction(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id"), action); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.challenges.LoadActions(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (s *Server) handleCompleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.challenges.CompleteRun(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminActions(w http.ResponseWriter, r *http.Request) {
	day, err := s.admin.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	result, err := s.admin.FetchActions(r.Context(), sessionFromContext(r.Context()), day)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRefreshChallenge(w http.ResponseWriter, r *http.Request) {
	details, err := s.challenges.RefreshChallengeDetails(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}
