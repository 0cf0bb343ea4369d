package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"grindolympiads/internal/app"
	"grindolympiads/internal/domain"
	"grindolympiads/internal/logging"
)

const userIDHeader = "X-User-ID"

type contextKey string

const sessionContextKey contextKey = "session"

// responseWriter captures the status code and size for request logs.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Hijack lets websocket upgrades pass through the logging wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// loggingMiddleware attaches a request-scoped logger and logs completion.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		logger := log.Logger.With().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		r = r.WithContext(logging.WithContext(r.Context(), logger))
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		event := logger.Info()
		switch {
		case wrapped.status >= 500:
			event = logger.Error()
		case wrapped.status >= 400:
			event = logger.Warn()
		}
		event.
			Int("status", wrapped.status).
			Int("size", wrapped.size).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// recoveryMiddleware turns panics into 500 responses.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.FromContext(r.Context()).Error().Interface("panic", rec).Msg("panic recovered")
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error": map[string]any{"code": codeInternal, "message": "internal server error"},
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware resolves the caller from the X-User-ID header, or the userId query
// parameter for websocket clients that cannot set headers. The stored profile is
// attached when it exists.
func sessionMiddleware(users app.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(userIDHeader)
			if userID == "" {
				userID = r.URL.Query().Get("userId")
			}
			sess := domain.Session{UserID: userID}
			if userID != "" {
				user, err := users.GetUser(r.Context(), userID)
				switch {
				case err == nil:
					sess.Profile = &user
				case !errors.Is(err, domain.ErrUserNotFound):
					handleError(w, r, err)
					return
				}
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			if userID != "" {
				logger := logging.FromContext(ctx).With().Str("user_id", userID).Logger()
				ctx = logging.WithContext(ctx, logger)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireSession rejects requests without a caller identity.
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionFromContext(r.Context()).UserID == "" {
			handleError(w, r, domain.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminOnly rejects callers whose stored profile is not an admin.
func adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessionFromContext(r.Context()).IsAdmin() {
			handleError(w, r, domain.ErrAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFromContext(ctx context.Context) domain.Session {
	if sess, ok := ctx.Value(sessionContextKey).(domain.Session); ok {
		return sess
	}
	return domain.Session{}
}
