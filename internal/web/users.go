package web

import (
	"net/http"

	"github.com/nancliu/pm-agent/internal/accounts"
	"github.com/nancliu/pm-agent/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        model.User `json:"user"`
}

type userListResponse struct {
	Users  []model.User `json:"users"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var reg accounts.Registration
	if err := decodeJSON(r, &reg); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.users.Register(r.Context(), reg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer", User: user})
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageFromRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	filter := model.UserFilter{
		Role:   query.Get("role"),
		Status: query.Get("status"),
		Search: query.Get("search"),
		Limit:  limit,
		Offset: offset,
	}

	users, total, err := s.users.List(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userListResponse{Users: users, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var reg accounts.Registration
	if err := decodeJSON(r, &reg); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.users.Create(r.Context(), reg, principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) getUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.users.Get(r.Context(), id, principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var patch accounts.UserPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.users.Update(r.Context(), id, patch, principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) deactivateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.users.Deactivate(r.Context(), id, principal(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
