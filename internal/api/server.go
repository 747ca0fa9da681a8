// Package api exposes the JSON CRUD surface: users, calendars, events,
// user profiles and notification logs. Every list endpoint funnels its
// filters query parameter through the filter compiler.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"gorm.io/gorm"

	"agenda/internal/event"
	"agenda/internal/filter"
	"agenda/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	db       *gorm.DB
	events   *event.Manager
	compiler *filter.Compiler
	log      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]uint // token -> user id
}

// New creates the API server.
func New(db *gorm.DB, events *event.Manager, compiler *filter.Compiler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		db:       db,
		events:   events,
		compiler: compiler,
		log:      log,
		sessions: make(map[string]uint),
	}
}

// Routes builds the full handler chain: mux, auth middleware and CORS.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	mux.Handle("POST /crud/event/", s.auth(s.handleCreateEvent))
	mux.Handle("GET /crud/event/", s.auth(s.handleListEvents))
	mux.Handle("GET /crud/event/{id}", s.auth(s.handleGetEvent))
	mux.Handle("PUT /crud/event/{id}", s.auth(s.handleUpdateEvent))
	mux.Handle("DELETE /crud/event/{id}", s.auth(s.handleDeleteEvent))

	mux.Handle("POST /crud/calendar/", s.auth(s.handleCreateCalendar))
	mux.Handle("GET /crud/calendar/", s.auth(s.handleListCalendars))
	mux.Handle("GET /crud/calendar/{id}", s.auth(s.handleGetCalendar))
	mux.Handle("PUT /crud/calendar/{id}", s.auth(s.handleUpdateCalendar))
	mux.Handle("DELETE /crud/calendar/{id}", s.auth(s.handleDeleteCalendar))

	mux.Handle("GET /crud/user/", s.auth(s.handleListUsers))
	mux.Handle("GET /crud/user/{id}", s.auth(s.handleGetUser))
	mux.Handle("PUT /crud/user/{id}", s.auth(s.handleUpdateUser))
	mux.Handle("DELETE /crud/user/{id}", s.auth(s.handleDeleteUser))

	mux.Handle("POST /crud/profile/", s.auth(s.handleCreateProfile))
	mux.Handle("GET /crud/profile/", s.auth(s.handleListProfiles))
	mux.Handle("GET /crud/profile/{id}", s.auth(s.handleGetProfile))
	mux.Handle("PUT /crud/profile/{id}", s.auth(s.handleUpdateProfile))
	mux.Handle("DELETE /crud/profile/{id}", s.auth(s.handleDeleteProfile))

	mux.Handle("GET /notifications", s.auth(s.handleListNotifications))
	mux.Handle("POST /notifications/{id}/read", s.auth(s.handleMarkNotificationRead))

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)
}

// auth validates the bearer token and stores the user id in the request
// context via a header rewrite-free closure.
func (s *Server) auth(next func(http.ResponseWriter, *http.Request, uint)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		s.mu.RLock()
		userID, ok := s.sessions[token]
		s.mu.RUnlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) newSession(userID uint) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = userID
	s.mu.Unlock()
	return token
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// listParams reads the shared filters/skip/limit query parameters.
func listParams(r *http.Request) (filters string, skip, limit int) {
	q := r.URL.Query()
	filters = q.Get("filters")
	skip, _ = strconv.Atoi(q.Get("skip"))
	limit = 10
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	return filters, skip, limit
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeStoreError maps store sentinels onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
