package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nancliu/pm-agent/internal/model"
)

// loggingMiddleware logs every request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.log.Request(r.Method, r.URL.Path, r.RemoteAddr, rw.statusCode, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type contextKey struct{}

// authMiddleware resolves the bearer token to an active user. The role comes
// from the store, not the token.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		id, err := s.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		user, err := s.users.Principal(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	}
}

// currentUser returns the user set by authMiddleware.
func currentUser(r *http.Request) model.User {
	user, _ := r.Context().Value(contextKey{}).(model.User)
	return user
}

func principal(r *http.Request) model.Principal {
	return currentUser(r).Principal()
}
