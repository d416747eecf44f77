package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Field is an optional patch value. Set distinguishes an omitted key from an
// explicit null, which decodes to the zero value with Set true.
type Field[T any] struct {
	Set   bool
	Value T
}

// Some returns a Field holding value.
func Some[T any](value T) Field[T] {
	return Field[T]{Set: true, Value: value}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if string(data) == "null" {
		var zero T
		f.Value = zero
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// TaskInput carries the fields accepted when creating a task.
type TaskInput struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	AssigneeID  *uuid.UUID `json:"assignee_id"`
	DueDate     time.Time  `json:"due_date"`
	Priority    string     `json:"priority"`
}

// TaskPatch carries a partial task update. Priority and Status stay raw so
// that validation can report which enumeration was violated.
type TaskPatch struct {
	Title       Field[string]     `json:"title"`
	Description Field[*string]    `json:"description"`
	AssigneeID  Field[*uuid.UUID] `json:"assignee_id"`
	DueDate     Field[time.Time]  `json:"due_date"`
	Priority    Field[string]     `json:"priority"`
	Status      Field[string]     `json:"status"`
}

// Empty reports whether the patch sets no field.
func (p TaskPatch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.AssigneeID.Set &&
		!p.DueDate.Set && !p.Priority.Set && !p.Status.Set
}

// FieldChange is one field of an update with its new value.
type FieldChange struct {
	Field string
	Value any
}
