package services

import (
	"context"
	"log/slog"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type UserService interface {
	Me(ctx context.Context, actor Identity) (*models.User, error)
	List(ctx context.Context, actor Identity) ([]models.User, error)
	Delete(ctx context.Context, actor Identity, id uuid.UUID) error
	Projects(ctx context.Context, actor Identity) ([]models.Project, error)
	Tasks(ctx context.Context, actor Identity) ([]models.Task, error)
	SubTasks(ctx context.Context, actor Identity) ([]models.SubTask, error)
	AuditLogs(ctx context.Context, actor Identity, filter repositories.AuditFilter) ([]models.AuditLog, error)
}

type UserServiceImpl struct {
	store  *repositories.Store
	logger *slog.Logger
}

func NewUserService(store *repositories.Store, logger *slog.Logger) *UserServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserServiceImpl{store: store, logger: logger}
}

func (s *UserServiceImpl) Me(ctx context.Context, actor Identity) (*models.User, error) {
	return s.store.GetUser(ctx, actor.UserID)
}

func (s *UserServiceImpl) List(ctx context.Context, actor Identity) ([]models.User, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden.WithMessage("only administrators can list users")
	}
	return s.store.ListUsers(ctx)
}

// Delete removes a user. It is refused while the user still created
// projects; their comments and attachments stay with no author.
func (s *UserServiceImpl) Delete(ctx context.Context, actor Identity, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return apperrors.ErrForbidden.WithMessage("only administrators can delete users")
	}
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user deleted", "user_id", id, "actor_id", actor.UserID)
	return nil
}

func (s *UserServiceImpl) Projects(ctx context.Context, actor Identity) ([]models.Project, error) {
	return s.store.ProjectsOf(ctx, actor.UserID)
}

func (s *UserServiceImpl) Tasks(ctx context.Context, actor Identity) ([]models.Task, error) {
	return s.store.TasksOf(ctx, actor.UserID)
}

func (s *UserServiceImpl) SubTasks(ctx context.Context, actor Identity) ([]models.SubTask, error) {
	return s.store.SubTasksOf(ctx, actor.UserID)
}

func (s *UserServiceImpl) AuditLogs(ctx context.Context, actor Identity, filter repositories.AuditFilter) ([]models.AuditLog, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden.WithMessage("only administrators can read the audit log")
	}
	return s.store.ListAuditLogs(ctx, filter)
}
