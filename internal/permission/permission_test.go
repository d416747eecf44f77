package permission

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/model"
)

func TestCanEditMatrix(t *testing.T) {
	creator := uuid.New()
	assignee := uuid.New()
	stranger := uuid.New()
	task := model.Task{ID: uuid.New(), CreatedBy: creator, AssigneeID: &assignee}

	for _, role := range append(model.Roles, model.Role("auditor")) {
		for _, id := range []uuid.UUID{creator, assignee, stranger} {
			p := model.Principal{ID: id, Role: role}
			want := role == model.RoleAdmin || role == model.RoleManager || id == creator || id == assignee
			got := CanEdit(p, task)
			if got.Allowed != want {
				t.Fatalf("CanEdit(role=%s, creator=%v, assignee=%v) = %v, want %v", role, id == creator, id == assignee, got.Allowed, want)
			}
			if !want && got.Reason == "" {
				t.Fatalf("expected denial reason for role %s", role)
			}
		}
	}
}

func TestCanEditWithoutAssignee(t *testing.T) {
	task := model.Task{ID: uuid.New(), CreatedBy: uuid.New()}
	p := model.Principal{ID: uuid.New(), Role: model.RoleMember}
	if CanEdit(p, task).Allowed {
		t.Fatalf("expected unassigned task to be denied for a stranger")
	}
}

func TestCanDelete(t *testing.T) {
	creator := uuid.New()
	assignee := uuid.New()
	task := model.Task{ID: uuid.New(), CreatedBy: creator, AssigneeID: &assignee}

	tests := []struct {
		name string
		p    model.Principal
		want bool
	}{
		{"admin", model.Principal{ID: uuid.New(), Role: model.RoleAdmin}, true},
		{"manager", model.Principal{ID: uuid.New(), Role: model.RoleManager}, true},
		{"creator member", model.Principal{ID: creator, Role: model.RoleMember}, true},
		{"creator guest", model.Principal{ID: creator, Role: model.RoleGuest}, true},
		{"assignee member", model.Principal{ID: assignee, Role: model.RoleMember}, false},
		{"stranger", model.Principal{ID: uuid.New(), Role: model.RoleMember}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanDelete(tt.p, task).Allowed; got != tt.want {
				t.Fatalf("CanDelete = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRestoreAndDeletedVisibility(t *testing.T) {
	for _, role := range model.Roles {
		p := model.Principal{ID: uuid.New(), Role: role}
		want := role == model.RoleAdmin || role == model.RoleManager
		if got := CanRestore(p).Allowed; got != want {
			t.Fatalf("CanRestore(%s) = %v, want %v", role, got, want)
		}
		if got := CanViewDeleted(p).Allowed; got != want {
			t.Fatalf("CanViewDeleted(%s) = %v, want %v", role, got, want)
		}
	}
}

func TestCanViewAlwaysAllowed(t *testing.T) {
	p := model.Principal{ID: uuid.New(), Role: model.RoleGuest}
	if !CanView(p, model.Task{CreatedBy: uuid.New()}).Allowed {
		t.Fatalf("expected view to be allowed")
	}
}

func TestDecisionErr(t *testing.T) {
	if err := Allow().Err(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	err := Deny("nope").Err()
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	var forbidden *model.ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Reason != "nope" {
		t.Fatalf("expected reason 'nope', got %v", err)
	}
}
