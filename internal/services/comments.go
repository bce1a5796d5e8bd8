package services

import (
	"context"
	"strings"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type CommentInput struct {
	Text string `json:"text" validate:"required,max=5000"`
}

type CommentService interface {
	Create(ctx context.Context, actor Identity, taskID uuid.UUID, input CommentInput) (*models.Comment, error)
	List(ctx context.Context, taskID uuid.UUID) ([]repositories.CommentView, error)
	Update(ctx context.Context, actor Identity, id uuid.UUID, input CommentInput) (*models.Comment, error)
	Delete(ctx context.Context, actor Identity, id uuid.UUID) error
}

type CommentServiceImpl struct {
	store *repositories.Store
	authz AuthorizationService
}

func NewCommentService(store *repositories.Store, authz AuthorizationService) *CommentServiceImpl {
	return &CommentServiceImpl{store: store, authz: authz}
}

func (s *CommentServiceImpl) Create(ctx context.Context, actor Identity, taskID uuid.UUID, input CommentInput) (*models.Comment, error) {
	input.Text = strings.TrimSpace(input.Text)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor, ActionContribute, TaskResource(taskID)); err != nil {
		return nil, parentMissing(err, apperrors.ErrTaskNotFound, "task")
	}

	authorID := actor.UserID
	comment := &models.Comment{TaskID: taskID, AuthorID: &authorID, Text: input.Text}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommentServiceImpl) List(ctx context.Context, taskID uuid.UUID) ([]repositories.CommentView, error) {
	if _, err := s.authz.ProjectOf(ctx, TaskResource(taskID)); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, taskID)
}

// Update changes the text. Only the author may edit, whatever their role.
func (s *CommentServiceImpl) Update(ctx context.Context, actor Identity, id uuid.UUID, input CommentInput) (*models.Comment, error) {
	input.Text = strings.TrimSpace(input.Text)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	comment, err := s.store.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.AuthorizeCommentAuthor(ctx, actor, comment); err != nil {
		return nil, err
	}

	if err := s.store.UpdateCommentText(ctx, id, input.Text); err != nil {
		return nil, err
	}
	return s.store.GetComment(ctx, id)
}

func (s *CommentServiceImpl) Delete(ctx context.Context, actor Identity, id uuid.UUID) error {
	comment, err := s.store.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authz.AuthorizeCommentAuthor(ctx, actor, comment); err != nil {
		return err
	}
	return s.store.DeleteComment(ctx, id)
}
