package repositories

import (
	"context"
	"time"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm/clause"
)

// UnknownUser is shown in place of a deleted author or uploader.
const UnknownUser = "Unknown"

func (s *Store) CreateComment(ctx context.Context, comment *models.Comment) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(comment).Error, apperrors.ErrCommentNotFound)
}

func (s *Store) GetComment(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	if err := s.conn(ctx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, translate(err, apperrors.ErrCommentNotFound)
	}
	return &comment, nil
}

type CommentView struct {
	ID         uuid.UUID  `json:"id"`
	TaskID     uuid.UUID  `json:"task_id"`
	AuthorID   *uuid.UUID `json:"author_id"`
	AuthorName string     `json:"author_name"`
	Text       string     `json:"text"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s *Store) ListComments(ctx context.Context, taskID uuid.UUID) ([]CommentView, error) {
	var comments []CommentView
	err := s.conn(ctx).Model(&models.Comment{}).
		Select("comments.id, comments.task_id, comments.author_id, COALESCE(users.username, ?) AS author_name, comments.text, comments.created_at, comments.updated_at", UnknownUser).
		Joins("LEFT JOIN users ON users.id = comments.author_id").
		Where("comments.task_id = ?", taskID).
		Order("comments.created_at asc").
		Scan(&comments).Error
	return comments, translate(err, apperrors.ErrCommentNotFound)
}

func (s *Store) UpdateCommentText(ctx context.Context, id uuid.UUID, text string) error {
	res := s.conn(ctx).Model(&models.Comment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"text":       text,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return translate(res.Error, apperrors.ErrCommentNotFound)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrCommentNotFound
	}
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, id uuid.UUID) error {
	res := s.conn(ctx).Delete(&models.Comment{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, apperrors.ErrCommentNotFound)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrCommentNotFound
	}
	return nil
}
