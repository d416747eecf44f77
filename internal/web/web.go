package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/nancliu/pm-agent/internal/accounts"
	"github.com/nancliu/pm-agent/internal/auth"
	"github.com/nancliu/pm-agent/internal/lifecycle"
	"github.com/nancliu/pm-agent/internal/logging"
	"github.com/nancliu/pm-agent/internal/model"
)

type Server struct {
	tasks   *lifecycle.Service
	users   *accounts.Service
	tokens  *auth.Issuer
	log     *logging.Logger
	origins []string
}

func NewServer(tasks *lifecycle.Service, users *accounts.Service, tokens *auth.Issuer, logger *logging.Logger, origins []string) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{tasks: tasks, users: users, tokens: tokens, log: logger, origins: origins}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", s.registerHandler).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.loginHandler).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", s.authMiddleware(s.meHandler)).Methods(http.MethodGet)

	r.HandleFunc("/users", s.authMiddleware(s.listUsersHandler)).Methods(http.MethodGet)
	r.HandleFunc("/users", s.authMiddleware(s.createUserHandler)).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}", s.authMiddleware(s.getUserHandler)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", s.authMiddleware(s.updateUserHandler)).Methods(http.MethodPut)
	r.HandleFunc("/users/{id}", s.authMiddleware(s.deactivateUserHandler)).Methods(http.MethodDelete)

	// Fixed paths go before /tasks/{id}.
	r.HandleFunc("/tasks", s.authMiddleware(s.listTasksHandler)).Methods(http.MethodGet)
	r.HandleFunc("/tasks", s.authMiddleware(s.createTaskHandler)).Methods(http.MethodPost)
	r.HandleFunc("/tasks/deleted", s.authMiddleware(s.listDeletedHandler)).Methods(http.MethodGet)
	r.HandleFunc("/tasks/deletion-logs", s.authMiddleware(s.listDeletionLogsHandler)).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", s.authMiddleware(s.getTaskHandler)).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", s.authMiddleware(s.updateTaskHandler)).Methods(http.MethodPut)
	r.HandleFunc("/tasks/{id}", s.authMiddleware(s.deleteTaskHandler)).Methods(http.MethodDelete)
	r.HandleFunc("/tasks/{id}/status", s.authMiddleware(s.changeStatusHandler)).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/restore", s.authMiddleware(s.restoreTaskHandler)).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}/history", s.authMiddleware(s.historyHandler)).Methods(http.MethodGet)

	headers := gorillahandlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})
	methods := gorillahandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	origins := gorillahandlers.AllowedOrigins(s.origins)

	recovery := gorillahandlers.RecoveryHandler(gorillahandlers.RecoveryLogger(s.log), gorillahandlers.PrintRecoveryStack(true))
	return recovery(gorillahandlers.CORS(headers, methods, origins)(r))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidPriority),
		errors.Is(err, model.ErrInvalidStatus),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrAssigneeNotFound),
		errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error(err, r.Method+" "+r.URL.Path)
		message = "internal server error"
	}
	writeError(w, status, message)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return fmt.Errorf("%w: request body is required", model.ErrInvalidInput)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", model.ErrNotFound)
	}
	return id, nil
}

func queryID(r *http.Request, key string) (*uuid.UUID, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s", model.ErrInvalidInput, key)
	}
	return &id, nil
}

func pageFromRequest(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return 0, 0, err
	}
	limit, offset = model.NormalizePage(limit, offset)
	return limit, offset, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", model.ErrInvalidInput, key)
	}
	return n, nil
}
