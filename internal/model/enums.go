package model

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleGuest   Role = "guest"
)

// Roles lists every role in privilege order.
var Roles = []Role{RoleAdmin, RoleManager, RoleMember, RoleGuest}

func ParseRole(value string) (Role, error) {
	switch role := Role(normalize(value)); role {
	case RoleAdmin, RoleManager, RoleMember, RoleGuest:
		return role, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, value)
	}
}

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserInactive  UserStatus = "inactive"
	UserSuspended UserStatus = "suspended"
)

func ParseUserStatus(value string) (UserStatus, error) {
	switch status := UserStatus(normalize(value)); status {
	case UserActive, UserInactive, UserSuspended:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown user status %q", ErrInvalidInput, value)
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ParsePriority(value string) (Priority, error) {
	switch priority := Priority(normalize(value)); priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return priority, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, value)
	}
}

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
	StatusOverdue    TaskStatus = "overdue"
)

// Statuses lists every task status.
var Statuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted, StatusBlocked, StatusOverdue}

func ParseTaskStatus(value string) (TaskStatus, error) {
	switch status := TaskStatus(normalize(value)); status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked, StatusOverdue:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
}

func normalize(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}
