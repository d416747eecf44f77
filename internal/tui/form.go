package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/nancliu/pm-agent/internal/model"
)

type formField struct {
	Label string
	Value string
}

const (
	fieldTitle = iota
	fieldDescription
	fieldDue
	fieldPriority
)

var priorityOrder = []model.Priority{model.PriorityLow, model.PriorityMedium, model.PriorityHigh}

func buildFormFields() []formField {
	return []formField{
		{Label: "Title"},
		{Label: "Description"},
		{Label: "Due (YYYY-MM-DD)"},
		{Label: "Priority (space/←→)", Value: string(model.PriorityMedium)},
	}
}

func parseFormFields(fields []formField) (model.TaskInput, error) {
	due, err := parseDue(fields[fieldDue].Value)
	if err != nil {
		return model.TaskInput{}, err
	}

	input := model.TaskInput{
		Title:    strings.TrimSpace(fields[fieldTitle].Value),
		DueDate:  due,
		Priority: strings.TrimSpace(fields[fieldPriority].Value),
	}
	if description := strings.TrimSpace(fields[fieldDescription].Value); description != "" {
		input.Description = &description
	}
	return input, nil
}

func parseDue(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("due date is required")
	}
	parsed, err := time.ParseInLocation("2006-01-02", trimmed, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date")
	}
	return parsed, nil
}

func isPriorityField(label string) bool {
	return strings.HasPrefix(label, "Priority")
}

func cyclePriority(current string, delta int) string {
	value := model.Priority(strings.TrimSpace(strings.ToLower(current)))
	index := 1
	for i, priority := range priorityOrder {
		if priority == value {
			index = i
			break
		}
	}
	index = (index + delta + len(priorityOrder)) % len(priorityOrder)
	return string(priorityOrder[index])
}
