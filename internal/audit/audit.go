// Package audit turns task updates into field-level history entries.
package audit

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/model"
)

// HistoryWriter persists history entries inside the caller's transaction.
type HistoryWriter interface {
	AddHistory(ctx context.Context, entry model.HistoryEntry) error
}

// Recorder compares an update against the current task and writes one entry
// per changed field. It performs no permission checks.
type Recorder struct {
	now   func() time.Time
	newID func() uuid.UUID
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now, newID: uuid.New}
}

// skipped fields are identity and bookkeeping timestamps.
var skipped = map[string]struct{}{
	model.FieldID:        {},
	model.FieldCreatedAt: {},
	model.FieldUpdatedAt: {},
	model.FieldDeletedAt: {},
}

// RecordUpdate writes history for every change whose stringified value differs
// from the task's current value. Entries are written in the order of changes.
func (r *Recorder) RecordUpdate(ctx context.Context, w HistoryWriter, task model.Task, changes []model.FieldChange, actor model.Principal) ([]model.HistoryEntry, error) {
	changedAt := r.now().UTC()
	entries := make([]model.HistoryEntry, 0, len(changes))

	for _, change := range changes {
		if _, ok := skipped[change.Field]; ok {
			continue
		}

		current, _ := task.FieldValue(change.Field)
		oldValue := Stringify(current)
		newValue := Stringify(change.Value)
		if equal(oldValue, newValue) {
			continue
		}

		entry := model.HistoryEntry{
			ID:        r.newID(),
			TaskID:    task.ID,
			FieldName: change.Field,
			OldValue:  oldValue,
			NewValue:  newValue,
			ChangedBy: actor.ID,
			ChangedAt: changedAt,
		}
		if err := w.AddHistory(ctx, entry); err != nil {
			return nil, fmt.Errorf("record %s change: %w", change.Field, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Stringify renders a field value for history. Absent values (nil or a nil
// pointer) return nil so they never compare equal to a real string.
func Stringify(value any) *string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return &v
	case *string:
		if v == nil {
			return nil
		}
		s := *v
		return &s
	case uuid.UUID:
		s := v.String()
		return &s
	case *uuid.UUID:
		if v == nil {
			return nil
		}
		s := v.String()
		return &s
	case time.Time:
		s := formatTime(v)
		return &s
	case *time.Time:
		if v == nil {
			return nil
		}
		s := formatTime(*v)
		return &s
	case model.Priority:
		s := string(v)
		return &s
	case model.TaskStatus:
		s := string(v)
		return &s
	case fmt.Stringer:
		if isNilPointer(v) {
			return nil
		}
		s := v.String()
		return &s
	}

	if isNilPointer(value) {
		return nil
	}
	s := fmt.Sprint(value)
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isNilPointer(value any) bool {
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
