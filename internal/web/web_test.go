package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nancliu/pm-agent/internal/accounts"
	"github.com/nancliu/pm-agent/internal/auth"
	"github.com/nancliu/pm-agent/internal/db"
	"github.com/nancliu/pm-agent/internal/lifecycle"
	"github.com/nancliu/pm-agent/internal/model"
)

type testEnv struct {
	handler http.Handler
	tokens  *auth.Issuer

	admin  model.User
	member model.User
	other  model.User
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.Open(db.DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	store := db.NewStore(conn, db.DialectSQLite)
	users := accounts.New(store, nil)
	tokens := auth.NewIssuer("test-secret", time.Hour)
	server := NewServer(lifecycle.New(store, nil), users, tokens, nil, nil)

	env := &testEnv{handler: server.Handler(), tokens: tokens}
	for _, seed := range []struct {
		dst  *model.User
		name string
		role model.Role
	}{
		{&env.admin, "admin", model.RoleAdmin},
		{&env.member, "member", model.RoleMember},
		{&env.other, "other", model.RoleMember},
	} {
		user, err := users.Bootstrap(context.Background(), accounts.Registration{
			Username: seed.name,
			Email:    seed.name + "@example.com",
			Password: "pass1234",
			Role:     string(seed.role),
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", seed.name, err)
		}
		*seed.dst = user
	}
	return env
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) bearerFor(t *testing.T, user model.User) map[string]string {
	t.Helper()
	token, err := env.tokens.Issue(user)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	rec := doRequest(t, env.handler, http.MethodGet, "/health", nil, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestRegisterLoginMe(t *testing.T) {
	env := setupTestEnv(t)

	rec := doRequest(t, env.handler, http.MethodPost, "/auth/register", map[string]string{
		"username": "newbie", "email": "newbie@example.com", "password": "pass1234",
	}, nil)
	expectStatus(t, rec, http.StatusCreated)

	rec = doRequest(t, env.handler, http.MethodPost, "/auth/register", map[string]string{
		"username": "newbie", "email": "again@example.com", "password": "pass1234",
	}, nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = doRequest(t, env.handler, http.MethodPost, "/auth/login", map[string]string{"username": "newbie", "password": "nope"}, nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = doRequest(t, env.handler, http.MethodPost, "/auth/login", map[string]string{"username": "newbie", "password": "pass1234"}, nil)
	expectStatus(t, rec, http.StatusOK)
	login := decode[tokenResponse](t, rec)
	if login.AccessToken == "" || login.User.Role != model.RoleMember {
		t.Fatalf("unexpected login response %+v", login)
	}

	rec = doRequest(t, env.handler, http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer " + login.AccessToken})
	expectStatus(t, rec, http.StatusOK)
	if me := decode[model.User](t, rec); me.Username != "newbie" {
		t.Fatalf("expected newbie, got %q", me.Username)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("password")) {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupTestEnv(t)

	expectStatus(t, doRequest(t, env.handler, http.MethodGet, "/tasks", nil, nil), http.StatusUnauthorized)
	expectStatus(t, doRequest(t, env.handler, http.MethodGet, "/tasks", nil, map[string]string{"Authorization": "Token abc"}), http.StatusUnauthorized)
	expectStatus(t, doRequest(t, env.handler, http.MethodGet, "/tasks", nil, map[string]string{"Authorization": "Bearer abc"}), http.StatusUnauthorized)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	env := setupTestEnv(t)
	member := env.bearerFor(t, env.member)
	other := env.bearerFor(t, env.other)
	admin := env.bearerFor(t, env.admin)
	due := time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339)

	rec := doRequest(t, env.handler, http.MethodPost, "/tasks", map[string]any{
		"title": "Ship release", "due_date": due, "priority": "urgent",
	}, member)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = doRequest(t, env.handler, http.MethodPost, "/tasks", map[string]any{
		"title": "Ship release", "due_date": due, "priority": "high",
	}, member)
	expectStatus(t, rec, http.StatusCreated)
	task := decode[model.Task](t, rec)
	if task.Status != model.StatusPending || task.CreatedBy != env.member.ID {
		t.Fatalf("unexpected task %+v", task)
	}
	taskPath := "/tasks/" + task.ID.String()

	rec = doRequest(t, env.handler, http.MethodPut, taskPath, map[string]any{"title": "Hijacked"}, other)
	expectStatus(t, rec, http.StatusForbidden)

	rec = doRequest(t, env.handler, http.MethodPut, taskPath, map[string]any{"title": "Ship 1.0"}, member)
	expectStatus(t, rec, http.StatusOK)

	rec = doRequest(t, env.handler, http.MethodGet, taskPath+"/history", nil, member)
	expectStatus(t, rec, http.StatusOK)
	history := decode[[]model.HistoryEntry](t, rec)
	if len(history) != 1 || history[0].FieldName != model.FieldTitle {
		t.Fatalf("expected one title entry, got %+v", history)
	}

	rec = doRequest(t, env.handler, http.MethodPost, taskPath+"/status", map[string]string{"status": "completed"}, member)
	expectStatus(t, rec, http.StatusBadRequest)
	rec = doRequest(t, env.handler, http.MethodPost, taskPath+"/status", map[string]string{"status": "in_progress"}, member)
	expectStatus(t, rec, http.StatusOK)

	rec = doRequest(t, env.handler, http.MethodDelete, taskPath, map[string]string{"reason": "duplicate"}, admin)
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, doRequest(t, env.handler, http.MethodGet, taskPath, nil, member), http.StatusNotFound)

	expectStatus(t, doRequest(t, env.handler, http.MethodGet, "/tasks/deleted", nil, member), http.StatusForbidden)
	rec = doRequest(t, env.handler, http.MethodGet, "/tasks/deleted", nil, admin)
	expectStatus(t, rec, http.StatusOK)
	if deleted := decode[[]model.Task](t, rec); len(deleted) != 1 {
		t.Fatalf("expected one deleted task, got %d", len(deleted))
	}

	rec = doRequest(t, env.handler, http.MethodGet, "/tasks/deletion-logs?task_id="+task.ID.String(), nil, admin)
	expectStatus(t, rec, http.StatusOK)
	logs := decode[[]model.DeletionLog](t, rec)
	if len(logs) != 1 || logs[0].Reason == nil || *logs[0].Reason != "duplicate" {
		t.Fatalf("unexpected deletion logs %+v", logs)
	}

	expectStatus(t, doRequest(t, env.handler, http.MethodPost, taskPath+"/restore", nil, member), http.StatusForbidden)
	expectStatus(t, doRequest(t, env.handler, http.MethodPost, taskPath+"/restore", nil, admin), http.StatusOK)

	rec = doRequest(t, env.handler, http.MethodGet, taskPath, nil, member)
	expectStatus(t, rec, http.StatusOK)
	if restored := decode[model.Task](t, rec); restored.Title != "Ship 1.0" || restored.Status != model.StatusInProgress {
		t.Fatalf("unexpected restored task %+v", restored)
	}
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	env := setupTestEnv(t)
	long := strings.Repeat("p", 80)

	rec := doRequest(t, env.handler, http.MethodPost, "/auth/register", map[string]string{
		"username": "verbose", "email": "verbose@example.com", "password": long,
	}, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = doRequest(t, env.handler, http.MethodPost, "/users", map[string]string{
		"username": "verbose", "email": "verbose@example.com", "password": long,
	}, env.bearerFor(t, env.admin))
	expectStatus(t, rec, http.StatusBadRequest)

	rec = doRequest(t, env.handler, http.MethodPut, "/users/"+env.member.ID.String(), map[string]string{
		"password": long,
	}, env.bearerFor(t, env.member))
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestListTasksRejectsUnknownStatus(t *testing.T) {
	env := setupTestEnv(t)
	rec := doRequest(t, env.handler, http.MethodGet, "/tasks?status=stuck", nil, env.bearerFor(t, env.member))
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestUserManagement(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.bearerFor(t, env.admin)
	member := env.bearerFor(t, env.member)

	rec := doRequest(t, env.handler, http.MethodGet, "/users?role=member", nil, admin)
	expectStatus(t, rec, http.StatusOK)
	list := decode[userListResponse](t, rec)
	if list.Total != 2 {
		t.Fatalf("expected 2 members, got %d", list.Total)
	}

	expectStatus(t, doRequest(t, env.handler, http.MethodGet, "/users/"+env.admin.ID.String(), nil, member), http.StatusForbidden)
	expectStatus(t, doRequest(t, env.handler, http.MethodDelete, "/users/"+env.other.ID.String(), nil, member), http.StatusForbidden)
	expectStatus(t, doRequest(t, env.handler, http.MethodPost, "/users", map[string]string{
		"username": "mgr", "email": "mgr@example.com", "password": "pass1234", "role": "manager",
	}, member), http.StatusForbidden)

	expectStatus(t, doRequest(t, env.handler, http.MethodDelete, "/users/"+env.other.ID.String(), nil, admin), http.StatusNoContent)
	expectStatus(t, doRequest(t, env.handler, http.MethodGet, "/auth/me", nil, env.bearerFor(t, env.other)), http.StatusUnauthorized)
}
