// Package permission decides what a principal may do with a task. Every
// function is pure: no store access, no side effects.
package permission

import (
	"github.com/nancliu/pm-agent/internal/model"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow grants an action.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny refuses an action with a reason for the caller.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Err returns nil for an allowed decision and a *model.ForbiddenError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return model.Forbidden(d.Reason)
}

const (
	reasonEdit       = "you do not have permission to edit this task"
	reasonDelete     = "you do not have permission to delete this task"
	reasonRestore    = "only admins and managers can restore tasks"
	reasonDeletedLog = "only admins and managers can view deleted tasks and deletion logs"
)

// CanEdit allows admins, managers, the assignee and the creator.
func CanEdit(p model.Principal, task model.Task) Decision {
	if isPrivileged(p.Role) {
		return Allow()
	}
	if task.AssigneeID != nil && *task.AssigneeID == p.ID {
		return Allow()
	}
	if task.CreatedBy == p.ID {
		return Allow()
	}
	return Deny(reasonEdit)
}

// CanView allows everyone.
func CanView(_ model.Principal, _ model.Task) Decision {
	return Allow()
}

// CanDelete allows admins, managers and the creator.
func CanDelete(p model.Principal, task model.Task) Decision {
	if isPrivileged(p.Role) {
		return Allow()
	}
	if task.CreatedBy == p.ID {
		return Allow()
	}
	return Deny(reasonDelete)
}

// CanRestore allows admins and managers.
func CanRestore(p model.Principal) Decision {
	if isPrivileged(p.Role) {
		return Allow()
	}
	return Deny(reasonRestore)
}

// CanViewDeleted gates the deleted-task list and the deletion logs.
func CanViewDeleted(p model.Principal) Decision {
	if isPrivileged(p.Role) {
		return Allow()
	}
	return Deny(reasonDeletedLog)
}

// IsManagerOrAdmin reports whether the role carries task-wide privileges.
func IsManagerOrAdmin(role model.Role) bool {
	return isPrivileged(role)
}

func isPrivileged(role model.Role) bool {
	switch role {
	case model.RoleAdmin, model.RoleManager:
		return true
	case model.RoleMember, model.RoleGuest:
		return false
	default:
		return false
	}
}
