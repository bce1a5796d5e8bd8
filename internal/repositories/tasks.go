package repositories

import (
	"context"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(task).Error, apperrors.ErrTaskNotFound)
}

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := s.conn(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, translate(err, apperrors.ErrTaskNotFound)
	}
	return &task, nil
}

// GetTaskForUpdate reads the persisted task inside a transaction so status
// transitions are judged against the stored value, not a client's copy.
func (s *Store) GetTaskForUpdate(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := s.forUpdate(s.conn(ctx)).First(&task, "id = ?", id).Error; err != nil {
		return nil, translate(err, apperrors.ErrTaskNotFound)
	}
	return &task, nil
}

// TaskProjectID returns the project a task belongs to. The edge never
// changes after creation.
func (s *Store) TaskProjectID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var task models.Task
	if err := s.conn(ctx).Select("id", "project_id").First(&task, "id = ?", id).Error; err != nil {
		return uuid.Nil, translate(err, apperrors.ErrTaskNotFound)
	}
	return task.ProjectID, nil
}

type TaskFilter struct {
	ProjectID  *uuid.UUID
	AssigneeID *uuid.UUID
	Status     models.TaskStatus
	Priority   models.Priority
	Page       Page
}

var taskSortColumns = map[string]string{
	"created_at":   "tasks.created_at",
	"updated_at":   "tasks.updated_at",
	"due_date":     "tasks.due_date",
	"title":        "tasks.title",
	"status":       "tasks.status",
	"priority":     "tasks.priority",
	"completed_at": "tasks.completed_at",
}

func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error) {
	q := s.conn(ctx).Model(&models.Task{})
	if filter.ProjectID != nil {
		q = q.Where("tasks.project_id = ?", *filter.ProjectID)
	}
	if filter.AssigneeID != nil {
		q = q.Where("tasks.id IN (?)",
			s.conn(ctx).Model(&models.TaskAssignment{}).Select("task_id").Where("user_id = ?", *filter.AssigneeID))
	}
	if filter.Status != "" {
		q = q.Where("tasks.status = ?", filter.Status)
	}
	if filter.Priority != "" {
		q = q.Where("tasks.priority = ?", filter.Priority)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, apperrors.ErrTaskNotFound)
	}

	var tasks []models.Task
	err := filter.Page.apply(q, taskSortColumns, "created_at").Find(&tasks).Error
	return tasks, total, translate(err, apperrors.ErrTaskNotFound)
}

// UpdateTask writes the named columns of task. Zero rows affected means the
// task was deleted concurrently.
func (s *Store) UpdateTask(ctx context.Context, task *models.Task, columns ...string) error {
	res := s.conn(ctx).Model(&models.Task{}).
		Where("id = ?", task.ID).
		Select(columns).
		Updates(task)
	if res.Error != nil {
		return translate(res.Error, apperrors.ErrTaskNotFound)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes the task with its subtasks, comments, assignments and
// attachment records, returning the blob keys to remove after commit.
func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) ([]string, error) {
	exists, err := s.taskExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrTaskNotFound
	}
	return s.deleteTasks(ctx, []uuid.UUID{id})
}

func (s *Store) taskExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Task{}).Where("id = ?", id).Count(&count).Error
	return count > 0, translate(err, apperrors.ErrTaskNotFound)
}

func (s *Store) CreateSubTask(ctx context.Context, subTask *models.SubTask) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(subTask).Error, apperrors.ErrSubTaskNotFound)
}

func (s *Store) GetSubTask(ctx context.Context, id uuid.UUID) (*models.SubTask, error) {
	var subTask models.SubTask
	if err := s.conn(ctx).First(&subTask, "id = ?", id).Error; err != nil {
		return nil, translate(err, apperrors.ErrSubTaskNotFound)
	}
	return &subTask, nil
}

func (s *Store) GetSubTaskForUpdate(ctx context.Context, id uuid.UUID) (*models.SubTask, error) {
	var subTask models.SubTask
	if err := s.forUpdate(s.conn(ctx)).First(&subTask, "id = ?", id).Error; err != nil {
		return nil, translate(err, apperrors.ErrSubTaskNotFound)
	}
	return &subTask, nil
}

// SubTaskTaskID returns the parent task of a subtask.
func (s *Store) SubTaskTaskID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var subTask models.SubTask
	if err := s.conn(ctx).Select("id", "task_id").First(&subTask, "id = ?", id).Error; err != nil {
		return uuid.Nil, translate(err, apperrors.ErrSubTaskNotFound)
	}
	return subTask.TaskID, nil
}

func (s *Store) ListSubTasks(ctx context.Context, taskID uuid.UUID) ([]models.SubTask, error) {
	var subTasks []models.SubTask
	err := s.conn(ctx).Where("task_id = ?", taskID).Order("created_at asc").Find(&subTasks).Error
	return subTasks, translate(err, apperrors.ErrSubTaskNotFound)
}

func (s *Store) UpdateSubTask(ctx context.Context, subTask *models.SubTask, columns ...string) error {
	res := s.conn(ctx).Model(&models.SubTask{}).
		Where("id = ?", subTask.ID).
		Select(columns).
		Updates(subTask)
	if res.Error != nil {
		return translate(res.Error, apperrors.ErrSubTaskNotFound)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrSubTaskNotFound
	}
	return nil
}

func (s *Store) DeleteSubTask(ctx context.Context, id uuid.UUID) ([]string, error) {
	var count int64
	if err := s.conn(ctx).Model(&models.SubTask{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, translate(err, apperrors.ErrSubTaskNotFound)
	}
	if count == 0 {
		return nil, apperrors.ErrSubTaskNotFound
	}
	return s.deleteSubTasks(ctx, []uuid.UUID{id})
}
