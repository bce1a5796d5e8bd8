package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type CreateTaskInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=10000"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

type UpdateTaskInput struct {
	Title        *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string    `json:"description" validate:"omitempty,max=10000"`
	Status       *string    `json:"status"`
	Priority     *string    `json:"priority"`
	DueDate      *time.Time `json:"due_date"`
	ClearDueDate bool       `json:"clear_due_date"`
}

// statusOnly reports whether the update touches nothing but the status,
// which assignees may change as well as managers.
func (in UpdateTaskInput) statusOnly() bool {
	return in.Status != nil && in.Title == nil && in.Description == nil &&
		in.Priority == nil && in.DueDate == nil && !in.ClearDueDate
}

type TaskListOptions struct {
	ProjectID  *uuid.UUID
	AssigneeID *uuid.UUID
	Status     string
	Priority   string
	Page       repositories.Page
}

type TaskService interface {
	Create(ctx context.Context, actor Identity, projectID uuid.UUID, input CreateTaskInput) (*models.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, opts TaskListOptions) ([]models.Task, int64, error)
	Update(ctx context.Context, actor Identity, id uuid.UUID, input UpdateTaskInput) (*models.Task, error)
	Delete(ctx context.Context, actor Identity, id uuid.UUID) error
	Assign(ctx context.Context, actor Identity, taskID, userID uuid.UUID) error
	Unassign(ctx context.Context, actor Identity, taskID, userID uuid.UUID) error
	Assignees(ctx context.Context, taskID uuid.UUID) ([]models.User, error)
}

type TaskServiceImpl struct {
	store   *repositories.Store
	authz   AuthorizationService
	janitor BlobJanitor
	logger  *slog.Logger
	now     func() time.Time
}

func NewTaskService(store *repositories.Store, authz AuthorizationService, janitor BlobJanitor, logger *slog.Logger) *TaskServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskServiceImpl{store: store, authz: authz, janitor: janitor, logger: logger, now: time.Now}
}

func (s *TaskServiceImpl) Create(ctx context.Context, actor Identity, projectID uuid.UUID, input CreateTaskInput) (*models.Task, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	status := models.StatusToDo
	if input.Status != "" {
		parsed, err := models.ParseTaskStatus(input.Status)
		if err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
		status = parsed
	}
	priority := models.PriorityMedium
	if input.Priority != "" {
		parsed, err := models.ParsePriority(input.Priority)
		if err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
		priority = parsed
	}

	if err := s.authz.Authorize(ctx, actor, ActionContribute, ProjectResource(projectID)); err != nil {
		return nil, parentMissing(err, apperrors.ErrProjectNotFound, "project")
	}

	task := &models.Task{
		ProjectID:   projectID,
		Title:       input.Title,
		Description: input.Description,
		Status:      models.StatusToDo,
		Priority:    priority,
		DueDate:     input.DueDate,
	}
	ApplyStatusTransition(task, status, s.now())

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskServiceImpl) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return s.store.GetTask(ctx, id)
}

func (s *TaskServiceImpl) List(ctx context.Context, opts TaskListOptions) ([]models.Task, int64, error) {
	filter := repositories.TaskFilter{
		ProjectID:  opts.ProjectID,
		AssigneeID: opts.AssigneeID,
		Page:       opts.Page,
	}
	if opts.Status != "" {
		status, err := models.ParseTaskStatus(opts.Status)
		if err != nil {
			return nil, 0, apperrors.InvalidInput(err.Error())
		}
		filter.Status = status
	}
	if opts.Priority != "" {
		priority, err := models.ParsePriority(opts.Priority)
		if err != nil {
			return nil, 0, apperrors.InvalidInput(err.Error())
		}
		filter.Priority = priority
	}
	if opts.ProjectID != nil {
		exists, err := s.store.ProjectExists(ctx, *opts.ProjectID)
		if err != nil {
			return nil, 0, err
		}
		if !exists {
			return nil, 0, apperrors.ErrProjectNotFound
		}
	}
	return s.store.ListTasks(ctx, filter)
}

// Update applies the given fields. The status side effect is computed from
// the row read inside the transaction, never from client-supplied state.
func (s *TaskServiceImpl) Update(ctx context.Context, actor Identity, id uuid.UUID, input UpdateTaskInput) (*models.Task, error) {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		input.Title = &title
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var status models.TaskStatus
	if input.Status != nil {
		parsed, err := models.ParseTaskStatus(*input.Status)
		if err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
		status = parsed
	}
	var priority models.Priority
	if input.Priority != nil {
		parsed, err := models.ParsePriority(*input.Priority)
		if err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
		priority = parsed
	}

	action := ActionManage
	if input.statusOnly() {
		action = ActionAct
	}
	if err := s.authz.Authorize(ctx, actor, action, TaskResource(id)); err != nil {
		return nil, err
	}

	var task *models.Task
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		task, err = tx.GetTaskForUpdate(ctx, id)
		if err != nil {
			return err
		}

		columns := []string{"updated_at"}
		if input.Title != nil {
			task.Title = *input.Title
			columns = append(columns, "title")
		}
		if input.Description != nil {
			task.Description = *input.Description
			columns = append(columns, "description")
		}
		if input.Priority != nil {
			task.Priority = priority
			columns = append(columns, "priority")
		}
		if input.DueDate != nil || input.ClearDueDate {
			task.DueDate = input.DueDate
			if input.ClearDueDate {
				task.DueDate = nil
			}
			columns = append(columns, "due_date")
		}
		if input.Status != nil {
			ApplyStatusTransition(task, status, s.now())
			columns = append(columns, "status", "completed_at")
		}

		task.UpdatedAt = s.now().UTC()
		return tx.UpdateTask(ctx, task, columns...)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes the task with its subtasks, comments and attachments.
func (s *TaskServiceImpl) Delete(ctx context.Context, actor Identity, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, actor, ActionManage, TaskResource(id)); err != nil {
		return err
	}

	var keys []string
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		keys, err = tx.DeleteTask(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	s.authz.Forget(ctx, TaskResource(id))
	if s.janitor != nil {
		s.janitor.CleanupBlobs(ctx, keys)
	}
	s.logger.InfoContext(ctx, "task deleted", "task_id", id, "actor_id", actor.UserID, "blobs", len(keys))
	return nil
}

// Assign is idempotent. The assignee must be a member of the task's project.
func (s *TaskServiceImpl) Assign(ctx context.Context, actor Identity, taskID, userID uuid.UUID) error {
	if err := s.authz.Authorize(ctx, actor, ActionManage, TaskResource(taskID)); err != nil {
		return err
	}
	if err := s.requireProjectMember(ctx, TaskResource(taskID), userID); err != nil {
		return err
	}
	return s.store.AssignToTask(ctx, taskID, userID)
}

func (s *TaskServiceImpl) Unassign(ctx context.Context, actor Identity, taskID, userID uuid.UUID) error {
	if err := s.authz.Authorize(ctx, actor, ActionManage, TaskResource(taskID)); err != nil {
		return err
	}
	return s.store.UnassignFromTask(ctx, taskID, userID)
}

func (s *TaskServiceImpl) Assignees(ctx context.Context, taskID uuid.UUID) ([]models.User, error) {
	if _, err := s.authz.ProjectOf(ctx, TaskResource(taskID)); err != nil {
		return nil, err
	}
	return s.store.AssigneesOfTask(ctx, taskID)
}

func (s *TaskServiceImpl) requireProjectMember(ctx context.Context, res Resource, userID uuid.UUID) error {
	return requireProjectMember(ctx, s.store, s.authz, res, userID)
}

func requireProjectMember(ctx context.Context, store *repositories.Store, authz AuthorizationService, res Resource, userID uuid.UUID) error {
	projectID, err := authz.ProjectOf(ctx, res)
	if err != nil {
		return err
	}
	exists, err := store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.InvalidInput("assignee does not exist")
	}
	member, err := store.IsMember(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if !member {
		return apperrors.InvalidInput("assignee is not a member of the project")
	}
	return nil
}

// parentMissing reports a missing parent of a create as ParentNotFound.
func parentMissing(err error, notFound *apperrors.Error, parent string) error {
	if errors.Is(err, notFound) {
		return apperrors.ErrParentNotFound.WithMessage("%s not found", parent)
	}
	return err
}
