// Package httpapi is the thin web surface the site pages consume: call
// control, the live observable stream, and read-only call history for the
// admin status page.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/afroluxe/concierge/internal/call"
	"github.com/afroluxe/concierge/internal/config"
	"github.com/afroluxe/concierge/internal/observability"
	"github.com/afroluxe/concierge/internal/store"
	"github.com/afroluxe/concierge/internal/transcript"
)

// CallController is the slice of the coordinator the web surface drives.
type CallController interface {
	Start(ctx context.Context) error
	Hangup()
	Snapshot() call.Snapshot
}

type Server struct {
	cfg      config.Config
	ctrl     CallController
	store    store.Store
	metrics  *observability.Metrics
	hub      *Hub
	upgrader websocket.Upgrader
}

func New(cfg config.Config, ctrl CallController, st store.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		store:   st,
		metrics: metrics,
		hub:     NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin pages may watch or drive the kiosk
				// microphone unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/call/start", s.handleStartCall)
	r.Post("/v1/call/end", s.handleEndCall)
	r.Get("/v1/call/state", s.handleCallState)
	r.Get("/v1/call/events", s.handleCallEvents)
	r.Get("/v1/calls", s.handleListCalls)
	r.Get("/v1/calls/{id}", s.handleGetCall)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.store.Name(),
		"call_state": s.ctrl.Snapshot().State,
	})
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(r.Context()); err != nil {
		if errors.Is(err, call.ErrCallActive) {
			respondError(w, http.StatusConflict, "call_active", err.Error())
			return
		}
		// The controller already translated the failure into the
		// snapshot's user message; surface that.
		snap := s.ctrl.Snapshot()
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error": snap.UserMessage,
			"code":  "call_failed",
		})
		return
	}
	respondJSON(w, http.StatusCreated, s.ctrl.Snapshot())
}

func (s *Server) handleEndCall(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Hangup()
	respondJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleCallState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// handleCallEvents streams observable events to the page over a websocket.
// Read side only drains control frames; the page never sends data here.
func (s *Server) handleCallEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(events)

	// Prime the page with the current snapshot so it renders without
	// waiting for the next change.
	snap := s.ctrl.Snapshot()
	_ = conn.WriteJSON(struct {
		Event
		call.Snapshot
	}{newEvent("snapshot"), snap})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			if s.metrics != nil {
				s.metrics.WSMessages.WithLabelValues("ui", "event").Inc()
			}
		}
	}
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.HistoryLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}
	calls, err := s.store.ListCalls(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if calls == nil {
		calls = []store.CallRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetCall(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "call_not_found", "no call with id "+id)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// The server is the coordinator's Notifier: every observable change becomes
// a broadcast event.

func (s *Server) StateChanged(state call.State, userMessage string) {
	s.hub.broadcastEvent(StateEvent{Event: newEvent("state"), State: state, UserMessage: userMessage})
}

func (s *Server) VolumeChanged(volume float64) {
	s.hub.broadcastEvent(VolumeEvent{Event: newEvent("volume"), Volume: volume})
}

func (s *Server) SpeakingChanged(speaking bool) {
	s.hub.broadcastEvent(SpeakingEvent{Event: newEvent("speaking"), Speaking: speaking})
}

func (s *Server) TranscriptUpdated(turns []transcript.Turn) {
	s.hub.broadcastEvent(TranscriptEvent{Event: newEvent("transcript"), Turns: turns})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
