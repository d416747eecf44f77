// Package workflow holds the task status state machine.
package workflow

import (
	"github.com/nancliu/pm-agent/internal/model"
)

// Initial is the status every new task starts in.
const Initial = model.StatusPending

// Next returns the statuses reachable from from, in a stable order.
// Completed tasks can be reopened, so no status is terminal.
func Next(from model.TaskStatus) []model.TaskStatus {
	switch from {
	case model.StatusPending:
		return []model.TaskStatus{model.StatusInProgress, model.StatusBlocked, model.StatusOverdue}
	case model.StatusInProgress:
		return []model.TaskStatus{model.StatusCompleted, model.StatusBlocked, model.StatusOverdue}
	case model.StatusBlocked:
		return []model.TaskStatus{model.StatusPending, model.StatusInProgress, model.StatusOverdue}
	case model.StatusOverdue:
		return []model.TaskStatus{model.StatusInProgress, model.StatusCompleted, model.StatusBlocked}
	case model.StatusCompleted:
		return []model.TaskStatus{model.StatusInProgress, model.StatusBlocked}
	default:
		return nil
	}
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to model.TaskStatus) bool {
	for _, candidate := range Next(from) {
		if candidate == to {
			return true
		}
	}
	return false
}

// Validate returns a *model.TransitionError when from -> to is not allowed.
func Validate(from, to model.TaskStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return &model.TransitionError{From: from, To: to}
}
