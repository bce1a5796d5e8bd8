package services

import (
	"time"

	"taskify/backend/internal/models"
)

// ApplyStatusTransition moves task to next. task must hold the persisted
// status: completedAt is set on entry into Done, cleared on exit from Done
// and left alone otherwise.
func ApplyStatusTransition(task *models.Task, next models.TaskStatus, now time.Time) {
	prev := task.Status
	task.Status = next

	switch {
	case next == models.StatusDone && prev != models.StatusDone:
		completed := now.UTC()
		task.CompletedAt = &completed
	case next != models.StatusDone && prev == models.StatusDone:
		task.CompletedAt = nil
	}
}
