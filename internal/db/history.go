package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/model"
)

func (q *Queries) AddHistory(ctx context.Context, entry model.HistoryEntry) error {
	_, err := q.exec(ctx, `INSERT INTO task_history (id, task_id, field_name, old_value, new_value, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.TaskID.String(), entry.FieldName,
		nullString(entry.OldValue), nullString(entry.NewValue),
		entry.ChangedBy.String(), formatTime(entry.ChangedAt))
	if err != nil {
		return fmt.Errorf("add history: %w", err)
	}
	return nil
}

// ListHistory returns entries for a task, newest first. Entries written in
// the same instant come back in reverse insertion order.
func (q *Queries) ListHistory(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]model.HistoryEntry, error) {
	limit, offset = model.NormalizePage(limit, offset)
	rows, err := q.query(ctx, `SELECT id, task_id, field_name, old_value, new_value, changed_by, changed_at
		FROM task_history WHERE task_id = ?
		ORDER BY changed_at DESC, seq DESC LIMIT ? OFFSET ?`, taskID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	history := []model.HistoryEntry{}
	for rows.Next() {
		var (
			entry                          model.HistoryEntry
			id, task, changedBy, changedAt string
			oldValue, newValue             sql.NullString
		)
		if err := rows.Scan(&id, &task, &entry.FieldName, &oldValue, &newValue, &changedBy, &changedAt); err != nil {
			return nil, fmt.Errorf("list history: %w", err)
		}
		if entry.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse history id: %w", err)
		}
		if entry.TaskID, err = uuid.Parse(task); err != nil {
			return nil, fmt.Errorf("parse history task id: %w", err)
		}
		if entry.ChangedBy, err = uuid.Parse(changedBy); err != nil {
			return nil, fmt.Errorf("parse history actor: %w", err)
		}
		if entry.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, err
		}
		entry.OldValue = stringPtr(oldValue)
		entry.NewValue = stringPtr(newValue)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return history, nil
}

func (q *Queries) AddDeletionLog(ctx context.Context, log model.DeletionLog) error {
	_, err := q.exec(ctx, `INSERT INTO task_deletion_logs (id, task_id, deleted_by, deletion_reason, deleted_at)
		VALUES (?, ?, ?, ?, ?)`,
		log.ID.String(), log.TaskID.String(), log.DeletedBy.String(), nullString(log.Reason), formatTime(log.DeletedAt))
	if err != nil {
		return fmt.Errorf("add deletion log: %w", err)
	}
	return nil
}

// ListDeletionLogs returns deletion logs newest first, for one task when
// taskID is set.
func (q *Queries) ListDeletionLogs(ctx context.Context, taskID *uuid.UUID, limit, offset int) ([]model.DeletionLog, error) {
	limit, offset = model.NormalizePage(limit, offset)
	query := `SELECT id, task_id, deleted_by, deletion_reason, deleted_at FROM task_deletion_logs`
	args := []any{}
	if taskID != nil {
		query += ` WHERE task_id = ?`
		args = append(args, taskID.String())
	}
	query += ` ORDER BY deleted_at DESC, seq DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deletion logs: %w", err)
	}
	defer rows.Close()

	logs := []model.DeletionLog{}
	for rows.Next() {
		var (
			log                            model.DeletionLog
			id, task, deletedBy, deletedAt string
			reason                         sql.NullString
		)
		if err := rows.Scan(&id, &task, &deletedBy, &reason, &deletedAt); err != nil {
			return nil, fmt.Errorf("list deletion logs: %w", err)
		}
		if log.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse deletion log id: %w", err)
		}
		if log.TaskID, err = uuid.Parse(task); err != nil {
			return nil, fmt.Errorf("parse deletion log task id: %w", err)
		}
		if log.DeletedBy, err = uuid.Parse(deletedBy); err != nil {
			return nil, fmt.Errorf("parse deletion log actor: %w", err)
		}
		if log.DeletedAt, err = parseTime(deletedAt); err != nil {
			return nil, err
		}
		log.Reason = stringPtr(reason)
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deletion logs: %w", err)
	}
	return logs, nil
}
