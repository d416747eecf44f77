// Package ledger records soft deletes and restores of tasks.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/model"
)

// Store is the persistence the ledger writes through. Calls made during
// SoftDelete and Restore run in the caller's transaction.
type Store interface {
	MarkTaskDeleted(ctx context.Context, id uuid.UUID, at time.Time) error
	ClearTaskDeleted(ctx context.Context, id uuid.UUID) error
	AddDeletionLog(ctx context.Context, log model.DeletionLog) error
	ListDeletedTasks(ctx context.Context, limit, offset int) ([]model.Task, error)
	ListDeletionLogs(ctx context.Context, taskID *uuid.UUID, limit, offset int) ([]model.DeletionLog, error)
}

type Ledger struct {
	now   func() time.Time
	newID func() uuid.UUID
}

func New() *Ledger {
	return &Ledger{now: time.Now, newID: uuid.New}
}

// SoftDelete hides an active task and appends one deletion log. A blank
// reason is stored as absent.
func (l *Ledger) SoftDelete(ctx context.Context, s Store, task model.Task, actor model.Principal, reason *string) (model.DeletionLog, error) {
	at := l.now().UTC()

	if err := s.MarkTaskDeleted(ctx, task.ID, at); err != nil {
		return model.DeletionLog{}, fmt.Errorf("soft delete task: %w", err)
	}

	log := model.DeletionLog{
		ID:        l.newID(),
		TaskID:    task.ID,
		DeletedBy: actor.ID,
		Reason:    cleanReason(reason),
		DeletedAt: at,
	}
	if err := s.AddDeletionLog(ctx, log); err != nil {
		return model.DeletionLog{}, fmt.Errorf("soft delete task: %w", err)
	}
	return log, nil
}

// Restore makes a deleted task visible again. Deletion logs are kept and no
// restore entry is written.
func (l *Ledger) Restore(ctx context.Context, s Store, task model.Task, actor model.Principal) error {
	if err := s.ClearTaskDeleted(ctx, task.ID); err != nil {
		return fmt.Errorf("restore task: %w", err)
	}
	return nil
}

func (l *Ledger) ListDeleted(ctx context.Context, s Store, limit, offset int) ([]model.Task, error) {
	limit, offset = model.NormalizePage(limit, offset)
	return s.ListDeletedTasks(ctx, limit, offset)
}

func (l *Ledger) ListDeletionLogs(ctx context.Context, s Store, taskID *uuid.UUID, limit, offset int) ([]model.DeletionLog, error) {
	limit, offset = model.NormalizePage(limit, offset)
	return s.ListDeletionLogs(ctx, taskID, limit, offset)
}

func cleanReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*reason)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
