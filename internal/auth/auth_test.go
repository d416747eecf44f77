package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/model"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("pass1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "pass1234" {
		t.Fatalf("expected password to be hashed")
	}
	if !CheckPassword("pass1234", hash) {
		t.Fatalf("expected password to match")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected wrong password to fail")
	}
}

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	user := model.User{ID: uuid.New(), Role: model.RoleManager}

	token, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != user.ID {
		t.Fatalf("expected subject %s, got %s", user.ID, id)
	}
}

func TestParseRejects(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	user := model.User{ID: uuid.New(), Role: model.RoleMember}
	token, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewIssuer("other-secret", time.Hour)
	if _, err := other.Parse(token); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected wrong secret to be rejected, got %v", err)
	}

	if _, err := issuer.Parse("not-a-token"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected garbage to be rejected, got %v", err)
	}

	later := NewIssuer("test-secret", time.Hour)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := later.Parse(token); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}
