package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nancliu/pm-agent/internal/model"
	"github.com/nancliu/pm-agent/internal/workflow"
)

func relative(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func formatTaskSummary(task model.Task, now time.Time) string {
	return fmt.Sprintf("%s | %s | %s | due %s", task.Title, task.Status, task.Priority, relative(task.DueDate, now))
}

func formatDeletedSummary(task model.Task, now time.Time) string {
	if task.DeletedAt == nil {
		return task.Title
	}
	return fmt.Sprintf("%s | deleted %s", task.Title, relative(*task.DeletedAt, now))
}

func formatHistoryEntry(entry model.HistoryEntry, now time.Time) string {
	return fmt.Sprintf("%s | %s: %s -> %s", relative(entry.ChangedAt, now), entry.FieldName, valueOrDash(entry.OldValue), valueOrDash(entry.NewValue))
}

func valueOrDash(value *string) string {
	if value == nil || *value == "" {
		return "-"
	}
	return *value
}

func detailLines(task model.Task, now time.Time) []string {
	assignee := "unassigned"
	if task.AssigneeID != nil {
		assignee = task.AssigneeID.String()
	}

	lines := []string{
		task.Title,
		fmt.Sprintf("Status: %s", task.Status),
		fmt.Sprintf("Priority: %s", task.Priority),
		fmt.Sprintf("Due: %s (%s)", task.DueDate.Format("2006-01-02"), relative(task.DueDate, now)),
		fmt.Sprintf("Assignee: %s", assignee),
		fmt.Sprintf("Updated: %s", relative(task.UpdatedAt, now)),
	}
	if task.DeletedAt != nil {
		lines = append(lines, fmt.Sprintf("Deleted: %s", relative(*task.DeletedAt, now)))
	} else {
		next := workflow.Next(task.Status)
		names := make([]string, 0, len(next))
		for _, status := range next {
			names = append(names, string(status))
		}
		lines = append(lines, fmt.Sprintf("Next: %s", strings.Join(names, ", ")))
	}
	if task.Description != nil && strings.TrimSpace(*task.Description) != "" {
		lines = append(lines, "", *task.Description)
	}
	return lines
}

// stepStatus walks the status list from current in the direction of delta
// and returns the first status the workflow allows moving to.
func stepStatus(current model.TaskStatus, delta int) (model.TaskStatus, bool) {
	order := model.Statuses
	index := -1
	for i, status := range order {
		if status == current {
			index = i
			break
		}
	}
	if index < 0 {
		return "", false
	}
	for step := 1; step < len(order); step++ {
		candidate := order[((index+delta*step)%len(order)+len(order))%len(order)]
		if workflow.CanTransition(current, candidate) {
			return candidate, true
		}
	}
	return "", false
}
