package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/logging"
	"grindolympiads/internal/navigation"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type navigatePayload struct {
	Index int `json:"index"`
}

type answerPayload struct {
	Answer string `json:"answer"`
}

type selectPayload struct {
	Label  string `json:"label"`
	Answer string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	apiErr := toAPIError(err)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: apiErr.Code, Message: apiErr.Message}}
}

// ServeRunWS upgrades the request and drives a live navigation session for one run.
// Every state change and every tick is pushed as a "state" message.
func (s *Server) ServeRunWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	sess := sessionFromContext(ctx)
	runID := chi.URLParam(r, "id")

	run, err := s.challenges.GetRun(ctx, sess, runID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	nav := navigation.New(navigation.Config{
		RunID:        run.ID,
		UserID:       sess.UserID,
		Labels:       run.Challenge.Labels(),
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
		Preferences:  s.nav.Preferences,
		TickInterval: s.nav.TickInterval,
	}, s.states, s.challenges.NavigationBackend(sess), navigation.WithLogger(*log))
	if err := nav.Open(ctx); err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer nav.Close()

	updates, cancel := nav.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := s.dispatch(ctx, nav, inbound); err != nil {
			select {
			case send <- errorMessage(err):
			case <-writerDone:
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	log.Debug().Str("run_id", run.ID).Msg("ws session closed")
}

func (s *Server) dispatch(ctx context.Context, nav *navigation.Navigator, msg inboundMessage) error {
	switch msg.Type {
	case "navigate":
		var p navigatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return badRequest("invalid navigate payload")
		}
		return nav.NavigateToProblem(ctx, p.Index)
	case "answer":
		var p answerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return badRequest("invalid answer payload")
		}
		return nav.HandleAnswer(ctx, p.Answer)
	case "select":
		var p selectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return badRequest("invalid select payload")
		}
		return nav.SelectAnswer(ctx, p.Label, p.Answer)
	case "skip":
		return nav.HandleSkip(ctx)
	case "continue":
		return nav.HandleContinue(ctx)
	case "toggleView":
		return nav.ToggleShowAllProblems(ctx)
	case "preferences":
		var p navigation.Preferences
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return badRequest("invalid preferences payload")
		}
		return nav.SetPreferences(ctx, p)
	default:
		return &apiError{Status: http.StatusBadRequest, Code: codeBadRequest, Message: "unsupported message type", Err: domain.ErrInvalidAction}
	}
}
