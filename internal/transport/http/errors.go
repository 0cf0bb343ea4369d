package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/logging"
)

// Error codes of the JSON error envelope.
const (
	codeNotFound        = "NOT_FOUND"
	codeForbidden       = "FORBIDDEN"
	codeUnauthenticated = "UNAUTHENTICATED"
	codeConflict        = "CONFLICT"
	codeBadRequest      = "BAD_REQUEST"
	codeInternal        = "INTERNAL_ERROR"
)

// apiError is an error translated for an HTTP or websocket client.
type apiError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *apiError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *apiError) Unwrap() error {
	return e.Err
}

func badRequest(message string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: codeBadRequest, Message: message}
}

var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrExamNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrChallengeNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrRunNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrUserNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrStateNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrProblemNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrForbidden, http.StatusForbidden, codeForbidden},
	{domain.ErrAdminRequired, http.StatusForbidden, codeForbidden},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, codeUnauthenticated},
	{domain.ErrRunCompleted, http.StatusConflict, codeConflict},
	{domain.ErrSessionComplete, http.StatusConflict, codeConflict},
	{domain.ErrAwaitingContinue, http.StatusConflict, codeConflict},
	{domain.ErrNotPaused, http.StatusConflict, codeConflict},
	{domain.ErrInvalidAction, http.StatusBadRequest, codeBadRequest},
	{domain.ErrInvalidChallengeType, http.StatusBadRequest, codeBadRequest},
	{domain.ErrInvalidDate, http.StatusBadRequest, codeBadRequest},
	{domain.ErrInvalidProblemIndex, http.StatusBadRequest, codeBadRequest},
	{domain.ErrEmptyAnswer, http.StatusBadRequest, codeBadRequest},
}

// toAPIError maps domain sentinels to statuses; anything else is an internal error.
func toAPIError(err error) *apiError {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return &apiError{Status: m.status, Code: m.code, Message: err.Error(), Err: err}
		}
	}
	return &apiError{Status: http.StatusInternalServerError, Code: codeInternal, Message: "internal server error", Err: err}
}

// handleError centralizes error responses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)

	log := logging.FromContext(r.Context())
	switch {
	case apiErr.Status >= 500:
		log.Error().Err(err).Msg("server error")
	case apiErr.Status >= 400:
		log.Warn().Err(err).Int("status", apiErr.Status).Msg("client error")
	}

	writeJSON(w, apiErr.Status, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
