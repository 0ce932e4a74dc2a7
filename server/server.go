// Package server exposes the agent over HTTP: registration, login, a
// chat endpoint, memory management, and a websocket chat loop.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evermind-ai/evermind/agent"
	"github.com/evermind-ai/evermind/auth"
	"github.com/evermind-ai/evermind/memory"
)

// MemoryAPI is the slice of the memory manager the server needs beyond
// what the agent handler already covers. *memory.Manager satisfies it.
type MemoryAPI interface {
	List(ctx context.Context, ownerID string) ([]memory.Record, error)
	Delete(ctx context.Context, ownerID, recordID string) error
	Clear(ctx context.Context, ownerID string) error
}

// Server wires the auth store, turn handler, and memory manager into an
// HTTP API.
type Server struct {
	auth    *auth.Store
	handler *agent.Handler
	mem     MemoryAPI
	logger  *slog.Logger
}

// New creates a server.
func New(authStore *auth.Store, handler *agent.Handler, mem MemoryAPI, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		auth:    authStore,
		handler: handler,
		mem:     mem,
		logger:  logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/api/register", s.handleRegister)
	r.Post("/api/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/api/chat", s.handleChat)
		r.Get("/api/memories", s.handleListMemories)
		r.Delete("/api/memories/{id}", s.handleDeleteMemory)
		r.Delete("/api/memories", s.handleClearMemories)
		r.Post("/api/logout", s.handleLogout)
		r.Get("/ws", s.handleWS)
	})

	return r
}

type ctxKey struct{}

var ownerKey ctxKey

// ownerFrom returns the authenticated owner ID placed by requireSession.
func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

// requireSession resolves the bearer token (header, or token query
// param for websocket clients) into an owner ID.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		ownerID, ok := s.auth.Resolve(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, ownerID)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ownerID, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		s.logger.Error("registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	token := s.auth.CreateSession(ownerID)
	writeJSON(w, http.StatusCreated, map[string]string{"owner_id": ownerID, "token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ownerID, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		s.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token := s.auth.CreateSession(ownerID)
	writeJSON(w, http.StatusOK, map[string]string{"owner_id": ownerID, "token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.auth.Revoke(token)
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.handler.Handle(r.Context(), ownerFrom(r.Context()), req.Message)
	if err != nil {
		s.logger.Error("turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to handle message")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	records, err := s.mem.List(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.logger.Error("list memories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list memories")
		return
	}
	if records == nil {
		records = []memory.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": records})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "id")
	err := s.mem.Delete(r.Context(), ownerFrom(r.Context()), recordID)
	switch {
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, "memory not found")
	case errors.Is(err, memory.ErrScopeViolation):
		writeError(w, http.StatusForbidden, "memory belongs to a different owner")
	case err != nil:
		s.logger.Error("delete memory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete memory")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleClearMemories(w http.ResponseWriter, r *http.Request) {
	if err := s.mem.Clear(r.Context(), ownerFrom(r.Context())); err != nil {
		s.logger.Error("clear memories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear memories")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
