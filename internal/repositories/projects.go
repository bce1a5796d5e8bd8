package repositories

import (
	"context"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateProject(ctx context.Context, project *models.Project) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(project).Error, apperrors.ErrProjectNotFound)
}

func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := s.conn(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, translate(err, apperrors.ErrProjectNotFound)
	}
	return &project, nil
}

// GetProjectForUpdate re-reads the project inside a transaction, locking the
// row on dialects that support it.
func (s *Store) GetProjectForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := s.forUpdate(s.conn(ctx)).First(&project, "id = ?", id).Error; err != nil {
		return nil, translate(err, apperrors.ErrProjectNotFound)
	}
	return &project, nil
}

func (s *Store) ProjectExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Project{}).Where("id = ?", id).Count(&count).Error
	return count > 0, translate(err, apperrors.ErrProjectNotFound)
}

// ProjectCreator returns the immutable creator of a project.
func (s *Store) ProjectCreator(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var project models.Project
	if err := s.conn(ctx).Select("id", "creator_id").First(&project, "id = ?", id).Error; err != nil {
		return uuid.Nil, translate(err, apperrors.ErrProjectNotFound)
	}
	return project.CreatorID, nil
}

type ProjectFilter struct {
	MemberID        *uuid.UUID
	IncludeArchived bool
	Page            Page
}

var projectSortColumns = map[string]string{
	"created_at": "projects.created_at",
	"name":       "projects.name",
	"start_date": "projects.start_date",
	"end_date":   "projects.end_date",
}

func (s *Store) ListProjects(ctx context.Context, filter ProjectFilter) ([]models.Project, int64, error) {
	q := s.conn(ctx).Model(&models.Project{})
	if filter.MemberID != nil {
		q = q.Where("projects.id IN (?)",
			s.conn(ctx).Model(&models.ProjectMembership{}).Select("project_id").Where("user_id = ?", *filter.MemberID))
	}
	if !filter.IncludeArchived {
		q = q.Where("projects.archived = ?", false)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, apperrors.ErrProjectNotFound)
	}

	var projects []models.Project
	err := filter.Page.apply(q, projectSortColumns, "created_at").Find(&projects).Error
	return projects, total, translate(err, apperrors.ErrProjectNotFound)
}

// UpdateProject writes the named columns. Zero rows affected means the
// project was deleted underneath the caller.
func (s *Store) UpdateProject(ctx context.Context, project *models.Project, columns ...string) error {
	res := s.conn(ctx).Model(&models.Project{}).
		Where("id = ?", project.ID).
		Select(columns).
		Updates(project)
	if res.Error != nil {
		return translate(res.Error, apperrors.ErrProjectNotFound)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrProjectNotFound
	}
	return nil
}

// DeleteProject removes the project and everything beneath it, depth first,
// and returns the storage keys of the attachment blobs that went with it.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) ([]string, error) {
	var taskIDs []uuid.UUID
	if err := s.conn(ctx).Model(&models.Task{}).Where("project_id = ?", id).Pluck("id", &taskIDs).Error; err != nil {
		return nil, translate(err, apperrors.ErrProjectNotFound)
	}

	keys, err := s.deleteTasks(ctx, taskIDs)
	if err != nil {
		return nil, err
	}

	if err := s.conn(ctx).Where("project_id = ?", id).Delete(&models.ProjectMembership{}).Error; err != nil {
		return nil, translate(err, apperrors.ErrProjectNotFound)
	}

	res := s.conn(ctx).Delete(&models.Project{}, "id = ?", id)
	if res.Error != nil {
		return nil, translate(res.Error, apperrors.ErrProjectNotFound)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrProjectNotFound
	}
	return keys, nil
}

func (s *Store) deleteTasks(ctx context.Context, taskIDs []uuid.UUID) ([]string, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	db := s.conn(ctx)

	var subTaskIDs []uuid.UUID
	if err := db.Model(&models.SubTask{}).Where("task_id IN ?", taskIDs).Pluck("id", &subTaskIDs).Error; err != nil {
		return nil, translate(err, apperrors.ErrTaskNotFound)
	}
	keys, err := s.deleteSubTasks(ctx, subTaskIDs)
	if err != nil {
		return nil, err
	}

	var taskKeys []string
	if err := db.Model(&models.Attachment{}).Where("task_id IN ?", taskIDs).Pluck("storage_key", &taskKeys).Error; err != nil {
		return nil, translate(err, apperrors.ErrTaskNotFound)
	}
	keys = append(keys, taskKeys...)

	if err := db.Where("task_id IN ?", taskIDs).Delete(&models.Attachment{}).Error; err != nil {
		return nil, translate(err, apperrors.ErrTaskNotFound)
	}
	if err := db.Where("task_id IN ?", taskIDs).Delete(&models.Comment{}).Error; err != nil {
		return nil, translate(err, apperrors.ErrTaskNotFound)
	}
	if err := db.Where("task_id IN ?", taskIDs).Delete(&models.TaskAssignment{}).Error; err != nil {
		return nil, translate(err, apperrors.ErrTaskNotFound)
	}
	if err := db.Where("id IN ?", taskIDs).Delete(&models.Task{}).Error; err != nil {
		return nil, translate(err, apperrors.ErrTaskNotFound)
	}
	return keys, nil
}

func (s *Store) deleteSubTasks(ctx context.Context, subTaskIDs []uuid.UUID) ([]string, error) {
	if len(subTaskIDs) == 0 {
		return nil, nil
	}
	db := s.conn(ctx)

	var keys []string
	if err := db.Model(&models.Attachment{}).Where("sub_task_id IN ?", subTaskIDs).Pluck("storage_key", &keys).Error; err != nil {
		return nil, translate(err, apperrors.ErrSubTaskNotFound)
	}
	if err := db.Where("sub_task_id IN ?", subTaskIDs).Delete(&models.Attachment{}).Error; err != nil {
		return nil, translate(err, apperrors.ErrSubTaskNotFound)
	}
	if err := db.Where("sub_task_id IN ?", subTaskIDs).Delete(&models.SubTaskAssignment{}).Error; err != nil {
		return nil, translate(err, apperrors.ErrSubTaskNotFound)
	}
	if err := db.Where("id IN ?", subTaskIDs).Delete(&models.SubTask{}).Error; err != nil {
		return nil, translate(err, apperrors.ErrSubTaskNotFound)
	}
	return keys, nil
}
