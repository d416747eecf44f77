// Package lifecycle runs every task mutation: permission check, validation,
// write and audit, one transaction per call.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/audit"
	"github.com/nancliu/pm-agent/internal/db"
	"github.com/nancliu/pm-agent/internal/ledger"
	"github.com/nancliu/pm-agent/internal/logging"
	"github.com/nancliu/pm-agent/internal/model"
	"github.com/nancliu/pm-agent/internal/permission"
	"github.com/nancliu/pm-agent/internal/workflow"
)

// Store opens the transaction each operation runs in.
type Store interface {
	InTx(ctx context.Context, fn func(q *db.Queries) error) error
}

type Service struct {
	store    Store
	recorder *audit.Recorder
	ledger   *ledger.Ledger
	log      *logging.Logger
	now      func() time.Time
	newID    func() uuid.UUID
}

func New(store Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:    store,
		recorder: audit.NewRecorder(),
		ledger:   ledger.New(),
		log:      logger,
		now:      time.Now,
		newID:    uuid.New,
	}
}

// Create stores a new pending task owned by actor. No history is written.
func (s *Service) Create(ctx context.Context, input model.TaskInput, actor model.Principal) (model.Task, error) {
	title, err := validateTitle(input.Title)
	if err != nil {
		return model.Task{}, err
	}
	if err := validateDescription(input.Description); err != nil {
		return model.Task{}, err
	}
	if err := validateDueDate(input.DueDate); err != nil {
		return model.Task{}, err
	}
	priority := model.PriorityMedium
	if input.Priority != "" {
		if priority, err = model.ParsePriority(input.Priority); err != nil {
			return model.Task{}, err
		}
	}

	now := s.now().UTC()
	task := model.Task{
		ID:          s.newID(),
		Title:       title,
		Description: input.Description,
		AssigneeID:  input.AssigneeID,
		DueDate:     input.DueDate.UTC(),
		Priority:    priority,
		Status:      workflow.Initial,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.InTx(ctx, func(q *db.Queries) error {
		if err := validateAssignee(ctx, q, task.AssigneeID); err != nil {
			return err
		}
		return q.InsertTask(ctx, task)
	})
	if err != nil {
		return model.Task{}, err
	}

	s.log.Infof("task %s created by %s", task.ID, actor.ID)
	return task, nil
}

// Update applies patch to an active task and records one history entry per
// changed field. Status values are checked against the enumeration only.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch model.TaskPatch, actor model.Principal) (model.Task, error) {
	var (
		updated model.Task
		entries []model.HistoryEntry
	)
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		task, err := q.GetActiveTask(ctx, id)
		if err != nil {
			return err
		}
		if err := permission.CanEdit(actor, task).Err(); err != nil {
			return err
		}

		next, changes, err := applyPatch(ctx, q, task, patch)
		if err != nil {
			return err
		}

		entries, err = s.recorder.RecordUpdate(ctx, q, task, changes, actor)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			updated = task
			return nil
		}

		next.UpdatedAt = s.now().UTC()
		if err := q.UpdateTask(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}

	if len(entries) > 0 {
		s.log.Infof("task %s updated by %s (%d fields)", id, actor.ID, len(entries))
	}
	return updated, nil
}

// ChangeStatus moves a task along one edge of the status workflow.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, status string, actor model.Principal) (model.Task, error) {
	var (
		updated model.Task
		from    model.TaskStatus
	)
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		task, err := q.GetActiveTask(ctx, id)
		if err != nil {
			return err
		}
		if err := permission.CanEdit(actor, task).Err(); err != nil {
			return err
		}

		to, err := model.ParseTaskStatus(status)
		if err != nil {
			return err
		}
		if err := workflow.Validate(task.Status, to); err != nil {
			return err
		}

		change := []model.FieldChange{{Field: model.FieldStatus, Value: to}}
		if _, err := s.recorder.RecordUpdate(ctx, q, task, change, actor); err != nil {
			return err
		}

		from = task.Status
		task.Status = to
		task.UpdatedAt = s.now().UTC()
		if err := q.UpdateTask(ctx, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}

	s.log.Infof("task %s status %s -> %s by %s", id, from, updated.Status, actor.ID)
	return updated, nil
}

// Delete soft-deletes an active task and logs who did it and why.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor model.Principal, reason *string) (model.DeletionLog, error) {
	var log model.DeletionLog
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		task, err := q.GetActiveTask(ctx, id)
		if err != nil {
			return err
		}
		if err := permission.CanDelete(actor, task).Err(); err != nil {
			return err
		}
		log, err = s.ledger.SoftDelete(ctx, q, task, actor, reason)
		return err
	})
	if err != nil {
		return model.DeletionLog{}, err
	}

	s.log.Infof("task %s deleted by %s", id, actor.ID)
	return log, nil
}

// Restore returns a deleted task to the active view.
func (s *Service) Restore(ctx context.Context, id uuid.UUID, actor model.Principal) (model.Task, error) {
	var restored model.Task
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		task, err := q.GetDeletedTask(ctx, id)
		if err != nil {
			return err
		}
		if err := permission.CanRestore(actor).Err(); err != nil {
			return err
		}
		if err := s.ledger.Restore(ctx, q, task, actor); err != nil {
			return err
		}
		task.DeletedAt = nil
		restored = task
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}

	s.log.Infof("task %s restored by %s", id, actor.ID)
	return restored, nil
}

// GetHistory lists the field changes of an active task, newest first.
func (s *Service) GetHistory(ctx context.Context, id uuid.UUID, actor model.Principal, limit, offset int) ([]model.HistoryEntry, error) {
	var history []model.HistoryEntry
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		task, err := q.GetActiveTask(ctx, id)
		if err != nil {
			return err
		}
		if err := permission.CanView(actor, task).Err(); err != nil {
			return err
		}
		history, err = q.ListHistory(ctx, id, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, actor model.Principal) (model.Task, error) {
	var task model.Task
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		var err error
		if task, err = q.GetActiveTask(ctx, id); err != nil {
			return err
		}
		return permission.CanView(actor, task).Err()
	})
	if err != nil {
		return model.Task{}, err
	}
	return task, nil
}

// List returns active tasks. A status filter must name a known status.
func (s *Service) List(ctx context.Context, filter model.Filter, actor model.Principal) ([]model.Task, error) {
	if filter.Status != "" {
		status, err := model.ParseTaskStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = string(status)
	}

	var tasks []model.Task
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		var err error
		tasks, err = q.ListActiveTasks(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", actor.ID, err)
	}
	return tasks, nil
}

func (s *Service) ListDeleted(ctx context.Context, actor model.Principal, limit, offset int) ([]model.Task, error) {
	if err := permission.CanViewDeleted(actor).Err(); err != nil {
		return nil, err
	}

	var tasks []model.Task
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		var err error
		tasks, err = s.ledger.ListDeleted(ctx, q, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Service) ListDeletionLogs(ctx context.Context, actor model.Principal, taskID *uuid.UUID, limit, offset int) ([]model.DeletionLog, error) {
	if err := permission.CanViewDeleted(actor).Err(); err != nil {
		return nil, err
	}

	var logs []model.DeletionLog
	err := s.store.InTx(ctx, func(q *db.Queries) error {
		var err error
		logs, err = s.ledger.ListDeletionLogs(ctx, q, taskID, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}
