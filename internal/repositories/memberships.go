package repositories

import (
	"context"
	"errors"
	"time"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddMember inserts the membership row. The composite primary key makes the
// uniqueness check atomic: of two concurrent inserts exactly one succeeds.
func (s *Store) AddMember(ctx context.Context, projectID, userID uuid.UUID, role models.ProjectRole) (*models.ProjectMembership, error) {
	membership := &models.ProjectMembership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  time.Now().UTC(),
	}
	err := s.conn(ctx).Omit(clause.Associations).Create(membership).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperrors.ErrDuplicateMembership.Wrap(err)
	}
	if err != nil {
		return nil, translate(err, apperrors.ErrProjectNotFound)
	}
	return membership, nil
}

func (s *Store) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	res := s.conn(ctx).Delete(&models.ProjectMembership{}, "project_id = ? AND user_id = ?", projectID, userID)
	if res.Error != nil {
		return translate(res.Error, apperrors.ErrNotAMember)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotAMember
	}
	return nil
}

// RemoveProjectAssignments drops the user's task and subtask assignments
// inside one project.
func (s *Store) RemoveProjectAssignments(ctx context.Context, projectID, userID uuid.UUID) error {
	db := s.conn(ctx)
	tasks := db.Model(&models.Task{}).Select("id").Where("project_id = ?", projectID)
	if err := db.Where("user_id = ? AND task_id IN (?)", userID, tasks).Delete(&models.TaskAssignment{}).Error; err != nil {
		return translate(err, apperrors.ErrNotAMember)
	}
	subTasks := db.Model(&models.SubTask{}).Select("id").Where("task_id IN (?)", db.Model(&models.Task{}).Select("id").Where("project_id = ?", projectID))
	if err := db.Where("user_id = ? AND sub_task_id IN (?)", userID, subTasks).Delete(&models.SubTaskAssignment{}).Error; err != nil {
		return translate(err, apperrors.ErrNotAMember)
	}
	return nil
}

func (s *Store) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.ProjectMembership{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, translate(err, apperrors.ErrNotAMember)
}

type MemberView struct {
	UserID    uuid.UUID          `json:"user_id"`
	Username  string             `json:"username"`
	Email     string             `json:"email"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Role      models.ProjectRole `json:"role"`
	JoinedAt  time.Time          `json:"joined_at"`
}

func (s *Store) MembersOf(ctx context.Context, projectID uuid.UUID) ([]MemberView, error) {
	var members []MemberView
	err := s.conn(ctx).Model(&models.ProjectMembership{}).
		Select("project_memberships.user_id, users.username, users.email, users.first_name, users.last_name, project_memberships.role, project_memberships.joined_at").
		Joins("JOIN users ON users.id = project_memberships.user_id").
		Where("project_memberships.project_id = ?", projectID).
		Order("project_memberships.joined_at asc").
		Scan(&members).Error
	return members, translate(err, apperrors.ErrProjectNotFound)
}

func (s *Store) ProjectsOf(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	var projects []models.Project
	err := s.conn(ctx).
		Joins("JOIN project_memberships ON project_memberships.project_id = projects.id").
		Where("project_memberships.user_id = ?", userID).
		Order("projects.created_at desc").
		Find(&projects).Error
	return projects, translate(err, apperrors.ErrProjectNotFound)
}

// AssignToTask is idempotent: assigning an existing assignee is a no-op.
func (s *Store) AssignToTask(ctx context.Context, taskID, userID uuid.UUID) error {
	err := s.conn(ctx).Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.TaskAssignment{TaskID: taskID, UserID: userID, AssignedAt: time.Now().UTC()}).Error
	return translate(err, apperrors.ErrTaskNotFound)
}

// UnassignFromTask succeeds whether or not the assignment existed.
func (s *Store) UnassignFromTask(ctx context.Context, taskID, userID uuid.UUID) error {
	err := s.conn(ctx).Delete(&models.TaskAssignment{}, "task_id = ? AND user_id = ?", taskID, userID).Error
	return translate(err, apperrors.ErrTaskNotFound)
}

func (s *Store) AssignToSubTask(ctx context.Context, subTaskID, userID uuid.UUID) error {
	err := s.conn(ctx).Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SubTaskAssignment{SubTaskID: subTaskID, UserID: userID, AssignedAt: time.Now().UTC()}).Error
	return translate(err, apperrors.ErrSubTaskNotFound)
}

func (s *Store) UnassignFromSubTask(ctx context.Context, subTaskID, userID uuid.UUID) error {
	err := s.conn(ctx).Delete(&models.SubTaskAssignment{}, "sub_task_id = ? AND user_id = ?", subTaskID, userID).Error
	return translate(err, apperrors.ErrSubTaskNotFound)
}

func (s *Store) IsAssignedToTask(ctx context.Context, taskID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.TaskAssignment{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Count(&count).Error
	return count > 0, translate(err, apperrors.ErrTaskNotFound)
}

func (s *Store) IsAssignedToSubTask(ctx context.Context, subTaskID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.SubTaskAssignment{}).
		Where("sub_task_id = ? AND user_id = ?", subTaskID, userID).
		Count(&count).Error
	return count > 0, translate(err, apperrors.ErrSubTaskNotFound)
}

// IsAssignedInProject reports whether the user is assigned to any task or
// subtask of the project.
func (s *Store) IsAssignedInProject(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	db := s.conn(ctx)
	tasks := db.Model(&models.Task{}).Select("id").Where("project_id = ?", projectID)

	var count int64
	if err := db.Model(&models.TaskAssignment{}).Where("user_id = ? AND task_id IN (?)", userID, tasks).Count(&count).Error; err != nil {
		return false, translate(err, apperrors.ErrTaskNotFound)
	}
	if count > 0 {
		return true, nil
	}

	subTasks := db.Model(&models.SubTask{}).Select("id").Where("task_id IN (?)", db.Model(&models.Task{}).Select("id").Where("project_id = ?", projectID))
	if err := db.Model(&models.SubTaskAssignment{}).Where("user_id = ? AND sub_task_id IN (?)", userID, subTasks).Count(&count).Error; err != nil {
		return false, translate(err, apperrors.ErrSubTaskNotFound)
	}
	return count > 0, nil
}

func (s *Store) AssigneesOfTask(ctx context.Context, taskID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := s.conn(ctx).
		Joins("JOIN task_assignments ON task_assignments.user_id = users.id").
		Where("task_assignments.task_id = ?", taskID).
		Order("users.username asc").
		Find(&users).Error
	return users, translate(err, apperrors.ErrTaskNotFound)
}

func (s *Store) AssigneesOfSubTask(ctx context.Context, subTaskID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := s.conn(ctx).
		Joins("JOIN sub_task_assignments ON sub_task_assignments.user_id = users.id").
		Where("sub_task_assignments.sub_task_id = ?", subTaskID).
		Order("users.username asc").
		Find(&users).Error
	return users, translate(err, apperrors.ErrSubTaskNotFound)
}

func (s *Store) TasksOf(ctx context.Context, userID uuid.UUID) ([]models.Task, error) {
	var tasks []models.Task
	err := s.conn(ctx).
		Joins("JOIN task_assignments ON task_assignments.task_id = tasks.id").
		Where("task_assignments.user_id = ?", userID).
		Order("tasks.created_at desc").
		Find(&tasks).Error
	return tasks, translate(err, apperrors.ErrTaskNotFound)
}

func (s *Store) SubTasksOf(ctx context.Context, userID uuid.UUID) ([]models.SubTask, error) {
	var subTasks []models.SubTask
	err := s.conn(ctx).
		Joins("JOIN sub_task_assignments ON sub_task_assignments.sub_task_id = sub_tasks.id").
		Where("sub_task_assignments.user_id = ?", userID).
		Order("sub_tasks.created_at desc").
		Find(&subTasks).Error
	return subTasks, translate(err, apperrors.ErrSubTaskNotFound)
}
