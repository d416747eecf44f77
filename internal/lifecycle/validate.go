package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nancliu/pm-agent/internal/model"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 500
)

func validateTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", fmt.Errorf("%w: title is required", model.ErrInvalidInput)
	}
	if utf8.RuneCountInString(trimmed) > maxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", model.ErrInvalidInput, maxTitleLength)
	}
	return trimmed, nil
}

func validateDescription(description *string) error {
	if description != nil && utf8.RuneCountInString(*description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", model.ErrInvalidInput, maxDescriptionLength)
	}
	return nil
}

func validateDueDate(due time.Time) error {
	if due.IsZero() {
		return fmt.Errorf("%w: due date is required", model.ErrInvalidInput)
	}
	return nil
}

// userChecker reports whether a user id exists.
type userChecker interface {
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
}

func validateAssignee(ctx context.Context, users userChecker, assignee *uuid.UUID) error {
	if assignee == nil {
		return nil
	}
	exists, err := users.UserExists(ctx, *assignee)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", model.ErrAssigneeNotFound, assignee)
	}
	return nil
}

// applyPatch validates every set field of patch and returns the updated task
// together with the changes in a fixed field order.
func applyPatch(ctx context.Context, users userChecker, task model.Task, patch model.TaskPatch) (model.Task, []model.FieldChange, error) {
	var changes []model.FieldChange

	if patch.Title.Set {
		title, err := validateTitle(patch.Title.Value)
		if err != nil {
			return model.Task{}, nil, err
		}
		task.Title = title
		changes = append(changes, model.FieldChange{Field: model.FieldTitle, Value: title})
	}
	if patch.Description.Set {
		if err := validateDescription(patch.Description.Value); err != nil {
			return model.Task{}, nil, err
		}
		task.Description = patch.Description.Value
		changes = append(changes, model.FieldChange{Field: model.FieldDescription, Value: patch.Description.Value})
	}
	if patch.AssigneeID.Set {
		if err := validateAssignee(ctx, users, patch.AssigneeID.Value); err != nil {
			return model.Task{}, nil, err
		}
		task.AssigneeID = patch.AssigneeID.Value
		changes = append(changes, model.FieldChange{Field: model.FieldAssigneeID, Value: patch.AssigneeID.Value})
	}
	if patch.DueDate.Set {
		if err := validateDueDate(patch.DueDate.Value); err != nil {
			return model.Task{}, nil, err
		}
		task.DueDate = patch.DueDate.Value.UTC()
		changes = append(changes, model.FieldChange{Field: model.FieldDueDate, Value: task.DueDate})
	}
	if patch.Priority.Set {
		priority, err := model.ParsePriority(patch.Priority.Value)
		if err != nil {
			return model.Task{}, nil, err
		}
		task.Priority = priority
		changes = append(changes, model.FieldChange{Field: model.FieldPriority, Value: priority})
	}
	if patch.Status.Set {
		status, err := model.ParseTaskStatus(patch.Status.Value)
		if err != nil {
			return model.Task{}, nil, err
		}
		task.Status = status
		changes = append(changes, model.FieldChange{Field: model.FieldStatus, Value: status})
	}

	return task, changes, nil
}
