package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/model"
)

const taskColumns = "id, title, description, assignee_id, due_date, priority, status, created_by, created_at, updated_at, deleted_at"

// Every normal read goes through the active view.
const (
	activeTasks  = `SELECT ` + taskColumns + ` FROM tasks WHERE deleted_at IS NULL`
	deletedTasks = `SELECT ` + taskColumns + ` FROM tasks WHERE deleted_at IS NOT NULL`
)

func (q *Queries) InsertTask(ctx context.Context, task model.Task) error {
	_, err := q.exec(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID.String(), task.Title, nullString(task.Description), nullUUID(task.AssigneeID),
		formatTime(task.DueDate), string(task.Priority), string(task.Status), task.CreatedBy.String(),
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt), nullTime(task.DeletedAt))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask writes the mutable fields of an active task.
func (q *Queries) UpdateTask(ctx context.Context, task model.Task) error {
	result, err := q.exec(ctx, `UPDATE tasks
		SET title = ?, description = ?, assignee_id = ?, due_date = ?, priority = ?, status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		task.Title, nullString(task.Description), nullUUID(task.AssigneeID), formatTime(task.DueDate),
		string(task.Priority), string(task.Status), formatTime(task.UpdatedAt), task.ID.String())
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectAffected(result, "update task")
}

func (q *Queries) GetActiveTask(ctx context.Context, id uuid.UUID) (model.Task, error) {
	task, err := scanTask(q.queryRow(ctx, activeTasks+` AND id = ?`, id.String()))
	if err != nil {
		return model.Task{}, notFound(err, "get task")
	}
	return task, nil
}

func (q *Queries) GetDeletedTask(ctx context.Context, id uuid.UUID) (model.Task, error) {
	task, err := scanTask(q.queryRow(ctx, deletedTasks+` AND id = ?`, id.String()))
	if err != nil {
		return model.Task{}, notFound(err, "get deleted task")
	}
	return task, nil
}

func (q *Queries) ListActiveTasks(ctx context.Context, filter model.Filter) ([]model.Task, error) {
	query := activeTasks
	args := []any{}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if filter.AssigneeID != nil {
		query += ` AND assignee_id = ?`
		args = append(args, filter.AssigneeID.String())
	}

	limit, offset := model.NormalizePage(filter.Limit, filter.Offset)
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return q.listTasks(ctx, "list tasks", query, args...)
}

func (q *Queries) ListDeletedTasks(ctx context.Context, limit, offset int) ([]model.Task, error) {
	limit, offset = model.NormalizePage(limit, offset)
	return q.listTasks(ctx, "list deleted tasks",
		deletedTasks+` ORDER BY deleted_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
}

// MarkTaskDeleted sets deleted_at on an active task.
func (q *Queries) MarkTaskDeleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := q.exec(ctx, `UPDATE tasks SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(at), id.String())
	if err != nil {
		return fmt.Errorf("mark task deleted: %w", err)
	}
	return expectAffected(result, "mark task deleted")
}

// ClearTaskDeleted clears deleted_at on a deleted task.
func (q *Queries) ClearTaskDeleted(ctx context.Context, id uuid.UUID) error {
	result, err := q.exec(ctx, `UPDATE tasks SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL`, id.String())
	if err != nil {
		return fmt.Errorf("clear task deleted: %w", err)
	}
	return expectAffected(result, "clear task deleted")
}

func (q *Queries) listTasks(ctx context.Context, what, query string, args ...any) ([]model.Task, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return tasks, nil
}

func scanTask(row rowScanner) (model.Task, error) {
	var (
		task                               model.Task
		id, priority, status, createdBy    string
		dueDate, createdAt, updatedAt      string
		description, assigneeID, deletedAt sql.NullString
	)
	if err := row.Scan(&id, &task.Title, &description, &assigneeID, &dueDate, &priority, &status,
		&createdBy, &createdAt, &updatedAt, &deletedAt); err != nil {
		return model.Task{}, err
	}

	var err error
	if task.ID, err = uuid.Parse(id); err != nil {
		return model.Task{}, fmt.Errorf("parse task id: %w", err)
	}
	if task.CreatedBy, err = uuid.Parse(createdBy); err != nil {
		return model.Task{}, fmt.Errorf("parse task creator: %w", err)
	}
	if task.AssigneeID, err = parseNullUUID(assigneeID); err != nil {
		return model.Task{}, err
	}
	task.Description = stringPtr(description)
	task.Priority = model.Priority(priority)
	task.Status = model.TaskStatus(status)
	if task.DueDate, err = parseTime(dueDate); err != nil {
		return model.Task{}, err
	}
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Task{}, err
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Task{}, err
	}
	if task.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return model.Task{}, err
	}
	return task, nil
}
