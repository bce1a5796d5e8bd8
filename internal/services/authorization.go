package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/cache"
	"taskify/backend/internal/models"
	"taskify/backend/internal/monitoring"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type ResourceKind string

const (
	ResourceProject ResourceKind = "project"
	ResourceTask    ResourceKind = "task"
	ResourceSubTask ResourceKind = "subtask"
)

// Resource names a node of the project hierarchy.
type Resource struct {
	Kind ResourceKind
	ID   uuid.UUID
}

func ProjectResource(id uuid.UUID) Resource { return Resource{Kind: ResourceProject, ID: id} }
func TaskResource(id uuid.UUID) Resource    { return Resource{Kind: ResourceTask, ID: id} }
func SubTaskResource(id uuid.UUID) Resource { return Resource{Kind: ResourceSubTask, ID: id} }

type Action string

const (
	// ActionManage needs manager rights: admin or project creator.
	ActionManage Action = "manage"
	// ActionAct needs manager rights or a direct assignment.
	ActionAct Action = "act"
	// ActionContribute needs manager rights, membership or any assignment
	// in the project.
	ActionContribute Action = "contribute"
)

type AuthorizationService interface {
	CanManage(ctx context.Context, actor Identity, res Resource) (bool, error)
	CanAct(ctx context.Context, actor Identity, res Resource) (bool, error)
	CanContribute(ctx context.Context, actor Identity, res Resource) (bool, error)
	Authorize(ctx context.Context, actor Identity, action Action, res Resource) error
	AuthorizeCommentAuthor(ctx context.Context, actor Identity, comment *models.Comment) error
	AuthorizeAttachmentDelete(ctx context.Context, actor Identity, attachment *models.Attachment) error
	ProjectOf(ctx context.Context, res Resource) (uuid.UUID, error)
	Forget(ctx context.Context, res Resource)
}

// Hierarchy edges and project creators never change, so they are cached.
const ownershipTTL = 10 * time.Minute

type AuthorizationServiceImpl struct {
	store  *repositories.Store
	cache  cache.Cache
	logger *slog.Logger
}

func NewAuthorizationService(store *repositories.Store, c cache.Cache, logger *slog.Logger) *AuthorizationServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationServiceImpl{store: store, cache: c, logger: logger}
}

func (s *AuthorizationServiceImpl) CanManage(ctx context.Context, actor Identity, res Resource) (bool, error) {
	if actor.IsAdmin() {
		// Still resolve so a missing target reports NotFound.
		_, err := s.ProjectOf(ctx, res)
		return err == nil, err
	}

	projectID, err := s.ProjectOf(ctx, res)
	if err != nil {
		return false, err
	}
	creatorID, err := s.creatorOf(ctx, projectID)
	if err != nil {
		return false, err
	}
	return creatorID == actor.UserID, nil
}

func (s *AuthorizationServiceImpl) CanAct(ctx context.Context, actor Identity, res Resource) (bool, error) {
	ok, err := s.CanManage(ctx, actor, res)
	if err != nil || ok {
		return ok, err
	}

	switch res.Kind {
	case ResourceTask:
		return s.store.IsAssignedToTask(ctx, res.ID, actor.UserID)
	case ResourceSubTask:
		assigned, err := s.store.IsAssignedToSubTask(ctx, res.ID, actor.UserID)
		if err != nil || assigned {
			return assigned, err
		}
		taskID, err := s.parentTask(ctx, res.ID)
		if err != nil {
			return false, err
		}
		return s.store.IsAssignedToTask(ctx, taskID, actor.UserID)
	}
	return false, nil
}

func (s *AuthorizationServiceImpl) CanContribute(ctx context.Context, actor Identity, res Resource) (bool, error) {
	ok, err := s.CanManage(ctx, actor, res)
	if err != nil || ok {
		return ok, err
	}

	projectID, err := s.ProjectOf(ctx, res)
	if err != nil {
		return false, err
	}
	member, err := s.store.IsMember(ctx, projectID, actor.UserID)
	if err != nil || member {
		return member, err
	}
	return s.store.IsAssignedInProject(ctx, projectID, actor.UserID)
}

// Authorize evaluates action on res and returns ErrForbidden on denial.
// Every decision is counted and written to the audit log.
func (s *AuthorizationServiceImpl) Authorize(ctx context.Context, actor Identity, action Action, res Resource) error {
	var (
		allowed bool
		err     error
	)
	switch action {
	case ActionManage:
		allowed, err = s.CanManage(ctx, actor, res)
	case ActionAct:
		allowed, err = s.CanAct(ctx, actor, res)
	case ActionContribute:
		allowed, err = s.CanContribute(ctx, actor, res)
	default:
		return apperrors.Internal(fmt.Errorf("unknown action %q", action))
	}
	if err != nil {
		return err
	}

	reason := fmt.Sprintf("%s rights on %s", action, res.Kind)
	return s.decide(ctx, actor, string(action), string(res.Kind), res.ID, allowed, reason)
}

func (s *AuthorizationServiceImpl) AuthorizeCommentAuthor(ctx context.Context, actor Identity, comment *models.Comment) error {
	return s.decide(ctx, actor, "edit", "comment", comment.ID, comment.IsAuthoredBy(actor.UserID), "comment author only")
}

// AuthorizeAttachmentDelete allows the uploader or a manager of the project
// that owns the attachment's parent.
func (s *AuthorizationServiceImpl) AuthorizeAttachmentDelete(ctx context.Context, actor Identity, attachment *models.Attachment) error {
	if attachment.IsUploadedBy(actor.UserID) {
		return s.decide(ctx, actor, "delete", "attachment", attachment.ID, true, "uploader")
	}

	allowed, err := s.CanManage(ctx, actor, attachmentParent(attachment))
	if err != nil {
		return err
	}
	return s.decide(ctx, actor, "delete", "attachment", attachment.ID, allowed, "uploader or project manager")
}

func (s *AuthorizationServiceImpl) decide(ctx context.Context, actor Identity, action, resource string, resourceID uuid.UUID, allowed bool, reason string) error {
	monitoring.RecordAuthorization(action, allowed)

	decision := "allowed"
	if !allowed {
		decision = "denied"
	}

	info := requestInfoFrom(ctx)
	entry := &models.AuditLog{
		UserID:     actor.UserID,
		Action:     action + "_" + resource,
		Resource:   resource,
		ResourceID: resourceID,
		Decision:   decision,
		Reason:     reason,
		PolicyType: "ownership",
		IPAddress:  info.IPAddress,
		UserAgent:  info.UserAgent,
		RequestID:  info.RequestID,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.store.CreateAuditLog(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit log write failed", "error", err, "action", entry.Action)
	}

	if !allowed {
		s.logger.InfoContext(ctx, "authorization denied",
			"user_id", actor.UserID, "action", action, "resource", resource, "resource_id", resourceID)
		return apperrors.ErrForbidden.WithMessage("not permitted to %s this %s", action, resource)
	}
	return nil
}

// ProjectOf resolves the project that owns res.
func (s *AuthorizationServiceImpl) ProjectOf(ctx context.Context, res Resource) (uuid.UUID, error) {
	switch res.Kind {
	case ResourceProject:
		if _, err := s.creatorOf(ctx, res.ID); err != nil {
			return uuid.Nil, err
		}
		return res.ID, nil
	case ResourceTask:
		return s.cachedEdge(ctx, "authz:task:"+res.ID.String()+":project", func() (uuid.UUID, error) {
			return s.store.TaskProjectID(ctx, res.ID)
		})
	case ResourceSubTask:
		taskID, err := s.parentTask(ctx, res.ID)
		if err != nil {
			return uuid.Nil, err
		}
		return s.ProjectOf(ctx, TaskResource(taskID))
	}
	return uuid.Nil, apperrors.Internal(fmt.Errorf("unknown resource kind %q", res.Kind))
}

// Forget drops cached edges for a deleted resource.
func (s *AuthorizationServiceImpl) Forget(ctx context.Context, res Resource) {
	if s.cache == nil {
		return
	}
	var key string
	switch res.Kind {
	case ResourceProject:
		key = "authz:project:" + res.ID.String() + ":creator"
	case ResourceTask:
		key = "authz:task:" + res.ID.String() + ":project"
	case ResourceSubTask:
		key = "authz:subtask:" + res.ID.String() + ":task"
	default:
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", "key", key, "error", err)
	}
}

func (s *AuthorizationServiceImpl) creatorOf(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	return s.cachedEdge(ctx, "authz:project:"+projectID.String()+":creator", func() (uuid.UUID, error) {
		return s.store.ProjectCreator(ctx, projectID)
	})
}

func (s *AuthorizationServiceImpl) parentTask(ctx context.Context, subTaskID uuid.UUID) (uuid.UUID, error) {
	return s.cachedEdge(ctx, "authz:subtask:"+subTaskID.String()+":task", func() (uuid.UUID, error) {
		return s.store.SubTaskTaskID(ctx, subTaskID)
	})
}

func (s *AuthorizationServiceImpl) cachedEdge(ctx context.Context, key string, load func() (uuid.UUID, error)) (uuid.UUID, error) {
	if s.cache != nil {
		var cached string
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if id, err := uuid.FromString(cached); err == nil {
				return id, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.DebugContext(ctx, "cache lookup failed", "key", key, "error", err)
		}
	}

	id, err := load()
	if err != nil {
		return uuid.Nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, id.String(), ownershipTTL); err != nil {
			s.logger.DebugContext(ctx, "cache store failed", "key", key, "error", err)
		}
	}
	return id, nil
}

func attachmentParent(a *models.Attachment) Resource {
	if a.SubTaskID != nil {
		return SubTaskResource(*a.SubTaskID)
	}
	if a.TaskID != nil {
		return TaskResource(*a.TaskID)
	}
	return Resource{}
}
