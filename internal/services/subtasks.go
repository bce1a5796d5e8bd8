package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type CreateSubTaskInput struct {
	Title string `json:"title" validate:"required,max=200"`
}

type UpdateSubTaskInput struct {
	Title     *string `json:"title" validate:"omitempty,min=1,max=200"`
	Completed *bool   `json:"completed"`
}

type SubTaskService interface {
	Create(ctx context.Context, actor Identity, taskID uuid.UUID, input CreateSubTaskInput) (*models.SubTask, error)
	Get(ctx context.Context, id uuid.UUID) (*models.SubTask, error)
	List(ctx context.Context, taskID uuid.UUID) ([]models.SubTask, error)
	Update(ctx context.Context, actor Identity, id uuid.UUID, input UpdateSubTaskInput) (*models.SubTask, error)
	Delete(ctx context.Context, actor Identity, id uuid.UUID) error
	Assign(ctx context.Context, actor Identity, subTaskID, userID uuid.UUID) error
	Unassign(ctx context.Context, actor Identity, subTaskID, userID uuid.UUID) error
	Assignees(ctx context.Context, subTaskID uuid.UUID) ([]models.User, error)
}

type SubTaskServiceImpl struct {
	store   *repositories.Store
	authz   AuthorizationService
	janitor BlobJanitor
	logger  *slog.Logger
}

func NewSubTaskService(store *repositories.Store, authz AuthorizationService, janitor BlobJanitor, logger *slog.Logger) *SubTaskServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubTaskServiceImpl{store: store, authz: authz, janitor: janitor, logger: logger}
}

func (s *SubTaskServiceImpl) Create(ctx context.Context, actor Identity, taskID uuid.UUID, input CreateSubTaskInput) (*models.SubTask, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor, ActionContribute, TaskResource(taskID)); err != nil {
		return nil, parentMissing(err, apperrors.ErrTaskNotFound, "task")
	}

	subTask := &models.SubTask{TaskID: taskID, Title: input.Title}
	if err := s.store.CreateSubTask(ctx, subTask); err != nil {
		return nil, err
	}
	return subTask, nil
}

func (s *SubTaskServiceImpl) Get(ctx context.Context, id uuid.UUID) (*models.SubTask, error) {
	return s.store.GetSubTask(ctx, id)
}

func (s *SubTaskServiceImpl) List(ctx context.Context, taskID uuid.UUID) ([]models.SubTask, error) {
	if _, err := s.authz.ProjectOf(ctx, TaskResource(taskID)); err != nil {
		return nil, err
	}
	return s.store.ListSubTasks(ctx, taskID)
}

// Update renames a subtask (managers) or toggles its completion (managers
// and assignees of the subtask or its task).
func (s *SubTaskServiceImpl) Update(ctx context.Context, actor Identity, id uuid.UUID, input UpdateSubTaskInput) (*models.SubTask, error) {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		input.Title = &title
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	action := ActionAct
	if input.Title != nil {
		action = ActionManage
	}
	if err := s.authz.Authorize(ctx, actor, action, SubTaskResource(id)); err != nil {
		return nil, err
	}

	var subTask *models.SubTask
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		subTask, err = tx.GetSubTaskForUpdate(ctx, id)
		if err != nil {
			return err
		}

		columns := []string{"updated_at"}
		if input.Title != nil {
			subTask.Title = *input.Title
			columns = append(columns, "title")
		}
		if input.Completed != nil {
			subTask.Completed = *input.Completed
			columns = append(columns, "completed")
		}
		subTask.UpdatedAt = time.Now().UTC()
		return tx.UpdateSubTask(ctx, subTask, columns...)
	})
	if err != nil {
		return nil, err
	}
	return subTask, nil
}

func (s *SubTaskServiceImpl) Delete(ctx context.Context, actor Identity, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, actor, ActionManage, SubTaskResource(id)); err != nil {
		return err
	}

	var keys []string
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		keys, err = tx.DeleteSubTask(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	s.authz.Forget(ctx, SubTaskResource(id))
	if s.janitor != nil {
		s.janitor.CleanupBlobs(ctx, keys)
	}
	return nil
}

func (s *SubTaskServiceImpl) Assign(ctx context.Context, actor Identity, subTaskID, userID uuid.UUID) error {
	if err := s.authz.Authorize(ctx, actor, ActionManage, SubTaskResource(subTaskID)); err != nil {
		return err
	}
	if err := requireProjectMember(ctx, s.store, s.authz, SubTaskResource(subTaskID), userID); err != nil {
		return err
	}
	return s.store.AssignToSubTask(ctx, subTaskID, userID)
}

func (s *SubTaskServiceImpl) Unassign(ctx context.Context, actor Identity, subTaskID, userID uuid.UUID) error {
	if err := s.authz.Authorize(ctx, actor, ActionManage, SubTaskResource(subTaskID)); err != nil {
		return err
	}
	return s.store.UnassignFromSubTask(ctx, subTaskID, userID)
}

func (s *SubTaskServiceImpl) Assignees(ctx context.Context, subTaskID uuid.UUID) ([]models.User, error) {
	if _, err := s.authz.ProjectOf(ctx, SubTaskResource(subTaskID)); err != nil {
		return nil, err
	}
	return s.store.AssigneesOfSubTask(ctx, subTaskID)
}
