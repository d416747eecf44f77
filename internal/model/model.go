package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Principal returns the acting identity for u.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role}
}

// Principal is the authenticated actor behind an operation.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	AssigneeID  *uuid.UUID `json:"assignee_id"`
	DueDate     time.Time  `json:"due_date"`
	Priority    Priority   `json:"priority"`
	Status      TaskStatus `json:"status"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Task field names as recorded in history entries.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldAssigneeID  = "assignee_id"
	FieldDueDate     = "due_date"
	FieldPriority    = "priority"
	FieldStatus      = "status"
	FieldCreatedBy   = "created_by"
	FieldCreatedAt   = "created_at"
	FieldUpdatedAt   = "updated_at"
	FieldDeletedAt   = "deleted_at"
)

// FieldValue returns the current value of the named field.
func (t Task) FieldValue(name string) (any, bool) {
	switch name {
	case FieldID:
		return t.ID, true
	case FieldTitle:
		return t.Title, true
	case FieldDescription:
		return t.Description, true
	case FieldAssigneeID:
		return t.AssigneeID, true
	case FieldDueDate:
		return t.DueDate, true
	case FieldPriority:
		return t.Priority, true
	case FieldStatus:
		return t.Status, true
	case FieldCreatedBy:
		return t.CreatedBy, true
	case FieldCreatedAt:
		return t.CreatedAt, true
	case FieldUpdatedAt:
		return t.UpdatedAt, true
	case FieldDeletedAt:
		return t.DeletedAt, true
	default:
		return nil, false
	}
}

// Deleted reports whether the task is soft-deleted.
func (t Task) Deleted() bool {
	return t.DeletedAt != nil
}

type HistoryEntry struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	FieldName string    `json:"field_name"`
	OldValue  *string   `json:"old_value"`
	NewValue  *string   `json:"new_value"`
	ChangedBy uuid.UUID `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type DeletionLog struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	DeletedBy uuid.UUID `json:"deleted_by"`
	Reason    *string   `json:"deletion_reason"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Filter narrows active task listings.
type Filter struct {
	Status     string     `json:"status"`
	AssigneeID *uuid.UUID `json:"assignee_id"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// UserFilter narrows user listings.
type UserFilter struct {
	Role   string
	Status string
	Search string
	Limit  int
	Offset int
}

// Page bounds used when callers leave limit unset or out of range.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// NormalizePage clamps limit and offset into the accepted range.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
