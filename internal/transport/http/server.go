package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"grindolympiads/internal/app"
	"grindolympiads/internal/navigation"
)

// NavigationSettings are the defaults applied to every live navigation session.
type NavigationSettings struct {
	Preferences  navigation.Preferences
	TickInterval time.Duration
}

// Server exposes the challenge use cases over HTTP and websockets.
type Server struct {
	challenges *app.ChallengeService
	admin      *app.AdminService
	users      app.UserRepository
	states     navigation.StateStore
	nav        NavigationSettings
	upgrader   websocket.Upgrader
}

func NewServer(challenges *app.ChallengeService, admin *app.AdminService, users app.UserRepository, states navigation.StateStore, nav NavigationSettings) *Server {
	return &Server{
		challenges: challenges,
		admin:      admin,
		users:      users,
		states:     states,
		nav:        nav,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	r.Use(sessionMiddleware(s.users))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(requireSession)
		r.Post("/challenges", s.handleStartChallenge)
		r.Get("/challenges/{id}", s.handleChallengeDetails)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Post("/runs/{id}/actions", s.handleRecordAction)
		r.Get("/runs/{id}/actions", s.handleLoadActions)
		r.Post("/runs/{id}/complete", s.handleCompleteRun)
		r.With(adminOnly).Get("/admin/actions", s.handleAdminActions)
		r.With(adminOnly).Post("/admin/challenges/{id}/refresh", s.handleRefreshChallenge)
	})

	r.With(requireSession).Get("/ws/runs/{id}", s.ServeRunWS)
	return r
}
