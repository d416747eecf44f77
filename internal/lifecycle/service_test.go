package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/db"
	"github.com/nancliu/pm-agent/internal/model"
	"github.com/nancliu/pm-agent/internal/workflow"
)

func TestCreateStartsPendingWithoutHistory(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	member := createUser(t, store, "member", model.RoleMember)

	task, err := svc.Create(ctx, model.TaskInput{Title: "  Plan sprint  ", DueDate: tomorrow()}, member)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", task.Status)
	}
	if task.Priority != model.PriorityMedium {
		t.Fatalf("expected default priority medium, got %s", task.Priority)
	}
	if task.CreatedBy != member.ID {
		t.Fatalf("expected creator %s, got %s", member.ID, task.CreatedBy)
	}
	if task.Title != "Plan sprint" {
		t.Fatalf("expected trimmed title, got %q", task.Title)
	}

	history, err := svc.GetHistory(ctx, task.ID, member, 0, 0)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no history on create, got %d", len(history))
	}
}

func TestCreateValidation(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	member := createUser(t, store, "member", model.RoleMember)
	missing := uuid.New()
	long := string(make([]byte, 501))

	tests := []struct {
		name  string
		input model.TaskInput
		want  error
	}{
		{"urgent priority", model.TaskInput{Title: "x", DueDate: tomorrow(), Priority: "urgent"}, model.ErrInvalidPriority},
		{"unknown assignee", model.TaskInput{Title: "x", DueDate: tomorrow(), AssigneeID: &missing}, model.ErrAssigneeNotFound},
		{"blank title", model.TaskInput{Title: "   ", DueDate: tomorrow()}, model.ErrInvalidInput},
		{"missing due date", model.TaskInput{Title: "x"}, model.ErrInvalidInput},
		{"long description", model.TaskInput{Title: "x", DueDate: tomorrow(), Description: &long}, model.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.input, member); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	tasks, err := svc.List(ctx, model.Filter{}, member)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected rejected creates to persist nothing, got %d tasks", len(tasks))
	}
}

func TestUpdateByStrangerIsForbidden(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	x := createUser(t, store, "x", model.RoleMember)
	y := createUser(t, store, "y", model.RoleMember)
	task := createTask(t, svc, x, "Owned by x")

	_, err := svc.Update(ctx, task.ID, model.TaskPatch{Title: model.Some("Taken over")}, y)
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	var forbidden *model.ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Reason == "" {
		t.Fatalf("expected a denial reason, got %v", err)
	}

	assignee := y.ID
	manager := createUser(t, store, "boss", model.RoleManager)
	if _, err := svc.Update(ctx, task.ID, model.TaskPatch{AssigneeID: model.Some(&assignee)}, manager); err != nil {
		t.Fatalf("manager assign: %v", err)
	}
	if _, err := svc.Update(ctx, task.ID, model.TaskPatch{Title: model.Some("Picked up")}, y); err != nil {
		t.Fatalf("expected assignee to edit, got %v", err)
	}
}

func TestUpdateTitleOnlyWritesOneEntry(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	member := createUser(t, store, "member", model.RoleMember)
	task := createTask(t, svc, member, "Draft")

	updated, err := svc.Update(ctx, task.ID, model.TaskPatch{Title: model.Some("Final")}, member)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Final" {
		t.Fatalf("expected new title, got %q", updated.Title)
	}

	history := mustHistory(t, svc, task.ID, member)
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	entry := history[0]
	if entry.FieldName != model.FieldTitle || *entry.OldValue != "Draft" || *entry.NewValue != "Final" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.ChangedBy != member.ID {
		t.Fatalf("expected changed_by %s, got %s", member.ID, entry.ChangedBy)
	}
}

func TestUpdateStoresDueDateInUTC(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	member := createUser(t, store, "member", model.RoleMember)
	task := createTask(t, svc, member, "Ship")

	due := tomorrow().Add(24 * time.Hour).In(time.FixedZone("UTC+9", 9*60*60))
	updated, err := svc.Update(ctx, task.ID, model.TaskPatch{DueDate: model.Some(due)}, member)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DueDate.Location() != time.UTC || !updated.DueDate.Equal(due) {
		t.Fatalf("expected %s in UTC, got %s", due.UTC(), updated.DueDate)
	}

	got, err := svc.Get(ctx, task.ID, member)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DueDate.String() != updated.DueDate.String() {
		t.Fatalf("expected stored due date %s, got %s", updated.DueDate, got.DueDate)
	}
}

func TestUpdateRollsBackHistoryWhenTaskWriteFails(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	member := createUser(t, store, "member", model.RoleMember)
	task := createTask(t, svc, member, "Draft")

	// History is written before the task row, so a failing task update must
	// take the already inserted entries with it.
	if _, err := store.DB.ExecContext(ctx, `CREATE TRIGGER reject_title BEFORE UPDATE ON tasks
		WHEN NEW.title = 'Rejected' BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := svc.Update(ctx, task.ID, model.TaskPatch{Title: model.Some("Rejected")}, member); err == nil {
		t.Fatalf("expected update to fail")
	}

	if history := mustHistory(t, svc, task.ID, member); len(history) != 0 {
		t.Fatalf("expected no history after failed update, got %d entries", len(history))
	}
	got, err := svc.Get(ctx, task.ID, member)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Draft" {
		t.Fatalf("expected title to stay Draft, got %q", got.Title)
	}
}

func TestUpdateWithCurrentValuesIsNoOp(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	member := createUser(t, store, "member", model.RoleMember)
	description := "notes"
	task, err := svc.Create(ctx, model.TaskInput{Title: "Same", Description: &description, DueDate: tomorrow(), Priority: "high"}, member)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	same := description
	patch := model.TaskPatch{
		Title:       model.Some(task.Title),
		Description: model.Some(&same),
		AssigneeID:  model.Some[*uuid.UUID](nil),
		DueDate:     model.Some(task.DueDate),
		Priority:    model.Some("HIGH"),
		Status:      model.Some("pending"),
	}
	updated, err := svc.Update(ctx, task.ID, patch, member)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UpdatedAt.Equal(task.UpdatedAt) {
		t.Fatalf("expected updated_at to stay put on a no-op update")
	}
	if history := mustHistory(t, svc, task.ID, member); len(history) != 0 {
		t.Fatalf("expected zero history entries, got %d", len(history))
	}
}

func TestUpdateRejectsUnknownEnumerations(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	admin := createUser(t, store, "admin", model.RoleAdmin)
	task := createTask(t, svc, admin, "Enum check")
	missing := uuid.New()

	if _, err := svc.Update(ctx, task.ID, model.TaskPatch{Priority: model.Some("urgent")}, admin); !errors.Is(err, model.ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
	if _, err := svc.Update(ctx, task.ID, model.TaskPatch{Status: model.Some("done")}, admin); !errors.Is(err, model.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.Update(ctx, task.ID, model.TaskPatch{Title: model.Some("Renamed"), AssigneeID: model.Some(&missing)}, admin); !errors.Is(err, model.ErrAssigneeNotFound) {
		t.Fatalf("expected ErrAssigneeNotFound, got %v", err)
	}

	reloaded, err := svc.Get(ctx, task.ID, admin)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Title != "Enum check" {
		t.Fatalf("expected failed update to leave the task untouched, got %q", reloaded.Title)
	}
	if history := mustHistory(t, svc, task.ID, admin); len(history) != 0 {
		t.Fatalf("expected no history after failed updates, got %d", len(history))
	}
}

func TestUpdateMissingTask(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	admin := createUser(t, store, "admin", model.RoleAdmin)

	_, err := svc.Update(context.Background(), uuid.New(), model.TaskPatch{Title: model.Some("x")}, admin)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChangeStatusFollowsWorkflow(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	admin := createUser(t, store, "admin", model.RoleAdmin)

	for _, from := range model.Statuses {
		for _, to := range model.Statuses {
			task := createTask(t, svc, admin, string(from)+" to "+string(to))
			if from != model.StatusPending {
				if _, err := svc.Update(ctx, task.ID, model.TaskPatch{Status: model.Some(string(from))}, admin); err != nil {
					t.Fatalf("seed status %s: %v", from, err)
				}
			}

			updated, err := svc.ChangeStatus(ctx, task.ID, string(to), admin)
			if workflow.CanTransition(from, to) {
				if err != nil {
					t.Fatalf("%s -> %s: expected success, got %v", from, to, err)
				}
				if updated.Status != to {
					t.Fatalf("%s -> %s: status is %s", from, to, updated.Status)
				}
				history := mustHistory(t, svc, task.ID, admin)
				if history[0].FieldName != model.FieldStatus || *history[0].NewValue != string(to) {
					t.Fatalf("%s -> %s: unexpected newest entry %+v", from, to, history[0])
				}
				continue
			}
			if !errors.Is(err, model.ErrInvalidTransition) {
				t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", from, to, err)
			}
		}
	}
}

func TestChangeStatusChecks(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	owner := createUser(t, store, "owner", model.RoleMember)
	guest := createUser(t, store, "guest", model.RoleGuest)
	task := createTask(t, svc, owner, "Status checks")

	if _, err := svc.ChangeStatus(ctx, task.ID, "in_progress", guest); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.ChangeStatus(ctx, task.ID, "archived", owner); !errors.Is(err, model.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	_, err := svc.ChangeStatus(ctx, task.ID, "completed", owner)
	var transition *model.TransitionError
	if !errors.As(err, &transition) || transition.From != model.StatusPending || transition.To != model.StatusCompleted {
		t.Fatalf("expected pending -> completed TransitionError, got %v", err)
	}
	if _, err := svc.ChangeStatus(ctx, task.ID, "in_progress", owner); err != nil {
		t.Fatalf("expected pending -> in_progress to succeed, got %v", err)
	}
}

func TestDeleteRestoreRoundTrip(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	owner := createUser(t, store, "owner", model.RoleMember)
	manager := createUser(t, store, "manager", model.RoleManager)
	task := createTask(t, svc, owner, "Round trip")

	if _, err := svc.Delete(ctx, task.ID, owner, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, task.ID, owner); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected deleted task to be hidden, got %v", err)
	}
	if _, err := svc.GetHistory(ctx, task.ID, owner, 0, 0); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected history of deleted task to be hidden, got %v", err)
	}
	if _, err := svc.Delete(ctx, task.ID, owner, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected second delete to fail with ErrNotFound, got %v", err)
	}
	if _, err := svc.Restore(ctx, task.ID, owner); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected member restore to be forbidden, got %v", err)
	}

	deleted, err := svc.ListDeleted(ctx, manager, 0, 0)
	if err != nil {
		t.Fatalf("list deleted: %v", err)
	}
	if len(deleted) != 1 || deleted[0].ID != task.ID {
		t.Fatalf("expected the task in the deleted list, got %+v", deleted)
	}

	restored, err := svc.Restore(ctx, task.ID, manager)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.DeletedAt != nil {
		t.Fatalf("expected deleted_at to be cleared")
	}

	reloaded, err := svc.Get(ctx, task.ID, owner)
	if err != nil {
		t.Fatalf("get restored: %v", err)
	}
	if reloaded.Title != task.Title || reloaded.Status != task.Status || reloaded.Priority != task.Priority ||
		!reloaded.DueDate.Equal(task.DueDate) || !reloaded.UpdatedAt.Equal(task.UpdatedAt) || reloaded.CreatedBy != task.CreatedBy {
		t.Fatalf("expected identical fields after restore, got %+v want %+v", reloaded, task)
	}

	logs, err := svc.ListDeletionLogs(ctx, manager, &task.ID, 0, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected exactly one deletion log after restore, got %d", len(logs))
	}

	if _, err := svc.Restore(ctx, task.ID, manager); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected restoring an active task to fail with ErrNotFound, got %v", err)
	}
	if history := mustHistory(t, svc, task.ID, owner); len(history) != 0 {
		t.Fatalf("expected delete and restore to leave field history alone, got %d", len(history))
	}
}

func TestAdminDeleteWithReason(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	member := createUser(t, store, "member", model.RoleMember)
	admin := createUser(t, store, "admin", model.RoleAdmin)
	task := createTask(t, svc, member, "Twice filed")
	other := createTask(t, svc, member, "Keep")

	reason := "duplicate"
	if _, err := svc.Delete(ctx, task.ID, admin, &reason); err != nil {
		t.Fatalf("delete: %v", err)
	}

	logs, err := svc.ListDeletionLogs(ctx, admin, &task.ID, 0, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Reason == nil || *logs[0].Reason != "duplicate" || logs[0].DeletedBy != admin.ID {
		t.Fatalf("unexpected logs %+v", logs)
	}

	tasks, err := svc.List(ctx, model.Filter{}, member)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != other.ID {
		t.Fatalf("expected only the surviving task, got %+v", tasks)
	}
}

func TestDeletePermissions(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	creator := createUser(t, store, "creator", model.RoleMember)
	assignee := createUser(t, store, "assignee", model.RoleMember)
	task, err := svc.Create(ctx, model.TaskInput{Title: "Assigned", DueDate: tomorrow(), AssigneeID: &assignee.ID}, creator)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Delete(ctx, task.ID, assignee, nil); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected assignee delete to be forbidden, got %v", err)
	}
	if _, err := svc.ListDeleted(ctx, creator, 0, 0); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected member deleted listing to be forbidden, got %v", err)
	}
	if _, err := svc.ListDeletionLogs(ctx, creator, nil, 0, 0); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected member log listing to be forbidden, got %v", err)
	}
	if _, err := svc.Delete(ctx, task.ID, creator, nil); err != nil {
		t.Fatalf("expected creator delete to succeed, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	svc, store, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	member := createUser(t, store, "member", model.RoleMember)
	task := createTask(t, svc, member, "Blocked one")
	createTask(t, svc, member, "Pending one")

	if _, err := svc.ChangeStatus(ctx, task.ID, "blocked", member); err != nil {
		t.Fatalf("change status: %v", err)
	}

	tasks, err := svc.List(ctx, model.Filter{Status: "Blocked"}, member)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Fatalf("expected the blocked task, got %+v", tasks)
	}
	if _, err := svc.List(ctx, model.Filter{Status: "stuck"}, member); !errors.Is(err, model.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func newTestService(t *testing.T) (*Service, *db.Store, func()) {
	t.Helper()
	conn, err := db.Open(db.DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := db.NewStore(conn, db.DialectSQLite)
	return New(store, nil), store, func() {
		_ = conn.Close()
	}
}

func createUser(t *testing.T, store *db.Store, username string, role model.Role) model.Principal {
	t.Helper()
	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Role:         role,
		Status:       model.UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.Queries.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user.Principal()
}

func createTask(t *testing.T, svc *Service, actor model.Principal, title string) model.Task {
	t.Helper()
	task, err := svc.Create(context.Background(), model.TaskInput{Title: title, DueDate: tomorrow()}, actor)
	if err != nil {
		t.Fatalf("create task %s: %v", title, err)
	}
	return task
}

func mustHistory(t *testing.T, svc *Service, id uuid.UUID, actor model.Principal) []model.HistoryEntry {
	t.Helper()
	history, err := svc.GetHistory(context.Background(), id, actor, 0, 0)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	return history
}

func tomorrow() time.Time {
	return time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
}
