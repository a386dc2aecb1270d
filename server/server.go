// Package server exposes the voice pipeline over HTTP: JSON control
// endpoints plus a per-session SSE event stream carrying transcript deltas
// and base64 audio chunks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	apperrors "github.com/sweetpotato0/voicecart/errors"
	"github.com/sweetpotato0/voicecart/pkg/logging"
	"github.com/sweetpotato0/voicecart/session"
	"github.com/sweetpotato0/voicecart/voice"
)

// Config holds server configuration.
type Config struct {
	AllowedOrigins []string
}

// CoordinatorFactory builds the turn coordinator for a freshly created
// session. Wiring lives in cmd; the server only routes.
type CoordinatorFactory func(sess *session.Session) *voice.Coordinator

// Server routes session lifecycle and turn traffic to per-session
// coordinators.
type Server struct {
	router  *chi.Mux
	manager *session.Manager
	build   CoordinatorFactory
	logger  *slog.Logger

	mu           sync.RWMutex
	coordinators map[string]*voice.Coordinator
}

// New creates the HTTP server.
func New(manager *session.Manager, build CoordinatorFactory, cfg Config) *Server {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s := &Server{
		router:       r,
		manager:      manager,
		build:        build,
		logger:       logging.WithComponent("server"),
		coordinators: make(map[string]*voice.Coordinator),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/api/sessions", s.handleCreateSession)
	s.router.Post("/api/sessions/{id}/turn", s.handleTurn)
	s.router.Get("/api/sessions/{id}/events", s.handleEvents)
	s.router.Post("/api/sessions/{id}/interrupt", s.handleInterrupt)
	s.router.Delete("/api/sessions/{id}", s.handleDeleteSession)
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Create("")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	coord := s.build(sess)
	s.mu.Lock()
	s.coordinators[sess.ID()] = coord
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", sess.ID())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"session_id": sess.ID()})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinator(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	switch err := coord.Submit(body.Message); {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "accepted",
			"state":  string(coord.Session().State()),
		})
	case errors.Is(err, apperrors.ErrSessionBusy):
		s.writeError(w, http.StatusTooManyRequests, "session is busy, try again shortly")
	case errors.Is(err, apperrors.ErrSessionClosed):
		s.writeError(w, http.StatusGone, "session is closed")
	case errors.Is(err, apperrors.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "failed to submit turn")
	}
}

// handleEvents streams the session's turn events over SSE. One stream per
// session; a dropped connection tears the session down, cancelling any
// in-flight turn.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := chi.URLParam(r, "id")
	coord, found := s.coordinator(id)
	if !found {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("client disconnected", "session_id", id)
			s.teardown(id)
			return
		case ev, open := <-coord.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("event encoding failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	coord, ok := s.coordinator(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	coord.Interrupt()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.coordinator(id); !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.teardown(id)
	w.WriteHeader(http.StatusNoContent)
}

// teardown closes the coordinator and finalizes the session.
func (s *Server) teardown(id string) {
	s.mu.Lock()
	coord, ok := s.coordinators[id]
	delete(s.coordinators, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	coord.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.manager.Close(ctx, id); err != nil {
		s.logger.Warn("session close", "session_id", id, "error", err)
	}
}

func (s *Server) coordinator(id string) (*voice.Coordinator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coord, ok := s.coordinators[id]
	return coord, ok
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
