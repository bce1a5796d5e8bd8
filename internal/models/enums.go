package models

import (
	"fmt"
	"strings"
)

// Role is the global role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ProjectRole is the role a member holds inside one project. It is
// informational only: management rights come from being the project creator.
type ProjectRole string

const (
	ProjectRolePM          ProjectRole = "PM"
	ProjectRoleContributor ProjectRole = "Contributor"
)

type TaskStatus string

const (
	StatusToDo       TaskStatus = "ToDo"
	StatusInProgress TaskStatus = "InProgress"
	StatusDone       TaskStatus = "Done"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// normalize folds case and drops separators so "in progress", "IN_PROGRESS"
// and "InProgress" compare equal.
func normalize(s string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(s)))
}

func ParseRole(s string) (Role, error) {
	switch normalize(s) {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func ParseProjectRole(s string) (ProjectRole, error) {
	switch normalize(s) {
	case "pm", "projectmanager":
		return ProjectRolePM, nil
	case "contributor":
		return ProjectRoleContributor, nil
	}
	return "", fmt.Errorf("unknown project role %q", s)
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch normalize(s) {
	case "todo":
		return StatusToDo, nil
	case "inprogress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

func ParsePriority(s string) (Priority, error) {
	switch normalize(s) {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}
