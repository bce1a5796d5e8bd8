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

// BlobJanitor removes the blobs of records deleted by a committed cascade.
type BlobJanitor interface {
	CleanupBlobs(ctx context.Context, keys []string)
}

type CreateProjectInput struct {
	Name      string     `json:"name" validate:"required,max=150"`
	Goal      string     `json:"goal" validate:"max=10000"`
	StartDate time.Time  `json:"start_date" validate:"required"`
	EndDate   *time.Time `json:"end_date"`
}

type UpdateProjectInput struct {
	Name         *string    `json:"name" validate:"omitempty,min=1,max=150"`
	Goal         *string    `json:"goal" validate:"omitempty,max=10000"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	ClearEndDate bool       `json:"clear_end_date"`
}

type ProjectListOptions struct {
	Mine            bool
	IncludeArchived bool
	Page            repositories.Page
}

type ProjectService interface {
	Create(ctx context.Context, actor Identity, input CreateProjectInput) (*models.Project, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context, actor Identity, opts ProjectListOptions) ([]models.Project, int64, error)
	Update(ctx context.Context, actor Identity, id uuid.UUID, input UpdateProjectInput) (*models.Project, error)
	Delete(ctx context.Context, actor Identity, id uuid.UUID) error
	ToggleArchive(ctx context.Context, actor Identity, id uuid.UUID) (*models.Project, error)
	AddMember(ctx context.Context, actor Identity, projectID, userID uuid.UUID, role string) (*models.ProjectMembership, error)
	RemoveMember(ctx context.Context, actor Identity, projectID, userID uuid.UUID) error
	Members(ctx context.Context, projectID uuid.UUID) ([]repositories.MemberView, error)
}

type ProjectServiceImpl struct {
	store   *repositories.Store
	authz   AuthorizationService
	janitor BlobJanitor
	logger  *slog.Logger
}

func NewProjectService(store *repositories.Store, authz AuthorizationService, janitor BlobJanitor, logger *slog.Logger) *ProjectServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectServiceImpl{store: store, authz: authz, janitor: janitor, logger: logger}
}

// Create inserts the project and the creator's PM membership atomically.
func (s *ProjectServiceImpl) Create(ctx context.Context, actor Identity, input CreateProjectInput) (*models.Project, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.EndDate != nil && input.EndDate.Before(input.StartDate) {
		return nil, apperrors.InvalidInput("end_date must not be before start_date")
	}

	project := &models.Project{
		Name:      input.Name,
		Goal:      input.Goal,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		CreatorID: actor.UserID,
	}
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.CreateProject(ctx, project); err != nil {
			return err
		}
		_, err := tx.AddMember(ctx, project.ID, actor.UserID, models.ProjectRolePM)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "project created", "project_id", project.ID, "creator_id", actor.UserID)
	return project, nil
}

func (s *ProjectServiceImpl) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.store.GetProject(ctx, id)
}

func (s *ProjectServiceImpl) List(ctx context.Context, actor Identity, opts ProjectListOptions) ([]models.Project, int64, error) {
	filter := repositories.ProjectFilter{IncludeArchived: opts.IncludeArchived, Page: opts.Page}
	if opts.Mine {
		filter.MemberID = &actor.UserID
	}
	return s.store.ListProjects(ctx, filter)
}

func (s *ProjectServiceImpl) Update(ctx context.Context, actor Identity, id uuid.UUID, input UpdateProjectInput) (*models.Project, error) {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		input.Name = &name
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor, ActionManage, ProjectResource(id)); err != nil {
		return nil, err
	}

	var project *models.Project
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		project, err = tx.GetProjectForUpdate(ctx, id)
		if err != nil {
			return err
		}

		columns := []string{"updated_at"}
		if input.Name != nil {
			project.Name = *input.Name
			columns = append(columns, "name")
		}
		if input.Goal != nil {
			project.Goal = *input.Goal
			columns = append(columns, "goal")
		}
		if input.StartDate != nil {
			project.StartDate = *input.StartDate
			columns = append(columns, "start_date")
		}
		if input.EndDate != nil || input.ClearEndDate {
			project.EndDate = input.EndDate
			if input.ClearEndDate {
				project.EndDate = nil
			}
			columns = append(columns, "end_date")
		}
		if project.EndDate != nil && project.EndDate.Before(project.StartDate) {
			return apperrors.InvalidInput("end_date must not be before start_date")
		}

		project.UpdatedAt = time.Now().UTC()
		return tx.UpdateProject(ctx, project, columns...)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// Delete removes the project subtree. Blobs are removed after the commit.
func (s *ProjectServiceImpl) Delete(ctx context.Context, actor Identity, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, actor, ActionManage, ProjectResource(id)); err != nil {
		return err
	}

	var keys []string
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		keys, err = tx.DeleteProject(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	s.authz.Forget(ctx, ProjectResource(id))
	if s.janitor != nil {
		s.janitor.CleanupBlobs(ctx, keys)
	}
	s.logger.InfoContext(ctx, "project deleted", "project_id", id, "actor_id", actor.UserID, "blobs", len(keys))
	return nil
}

func (s *ProjectServiceImpl) ToggleArchive(ctx context.Context, actor Identity, id uuid.UUID) (*models.Project, error) {
	if err := s.authz.Authorize(ctx, actor, ActionManage, ProjectResource(id)); err != nil {
		return nil, err
	}

	var project *models.Project
	err := s.store.Transaction(ctx, func(tx *repositories.Store) error {
		var err error
		project, err = tx.GetProjectForUpdate(ctx, id)
		if err != nil {
			return err
		}
		project.Archived = !project.Archived
		project.UpdatedAt = time.Now().UTC()
		return tx.UpdateProject(ctx, project, "archived", "updated_at")
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// AddMember adds userID to the project. The role defaults to Contributor.
func (s *ProjectServiceImpl) AddMember(ctx context.Context, actor Identity, projectID, userID uuid.UUID, role string) (*models.ProjectMembership, error) {
	projectRole := models.ProjectRoleContributor
	if strings.TrimSpace(role) != "" {
		parsed, err := models.ParseProjectRole(role)
		if err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
		projectRole = parsed
	}

	if err := s.authz.Authorize(ctx, actor, ActionManage, ProjectResource(projectID)); err != nil {
		return nil, err
	}

	exists, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrUserNotFound
	}

	return s.store.AddMember(ctx, projectID, userID, projectRole)
}

// RemoveMember drops the membership and the user's assignments inside the
// project. Managers may remove anyone but the creator; members may remove
// themselves.
func (s *ProjectServiceImpl) RemoveMember(ctx context.Context, actor Identity, projectID, userID uuid.UUID) error {
	if actor.UserID != userID {
		if err := s.authz.Authorize(ctx, actor, ActionManage, ProjectResource(projectID)); err != nil {
			return err
		}
	}

	creatorID, err := s.store.ProjectCreator(ctx, projectID)
	if err != nil {
		return err
	}
	if creatorID == userID {
		return apperrors.ErrCreatorMembership
	}

	return s.store.Transaction(ctx, func(tx *repositories.Store) error {
		if err := tx.RemoveMember(ctx, projectID, userID); err != nil {
			return err
		}
		return tx.RemoveProjectAssignments(ctx, projectID, userID)
	})
}

func (s *ProjectServiceImpl) Members(ctx context.Context, projectID uuid.UUID) ([]repositories.MemberView, error) {
	exists, err := s.store.ProjectExists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrProjectNotFound
	}
	return s.store.MembersOf(ctx, projectID)
}
