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

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	err := s.conn(ctx).Omit(clause.Associations).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Email and username are the only unique columns besides the key.
		if taken, lookupErr := s.EmailExists(ctx, user.Email); lookupErr == nil && !taken {
			return apperrors.ErrUsernameTaken.Wrap(err)
		}
		return apperrors.ErrEmailAlreadyExists.Wrap(err)
	}
	return translate(err, apperrors.ErrUserNotFound)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err, apperrors.ErrUserNotFound)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, translate(err, apperrors.ErrUserNotFound)
	}
	return &user, nil
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, translate(err, apperrors.ErrUserNotFound)
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, translate(err, apperrors.ErrUserNotFound)
}

func (s *Store) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, translate(err, apperrors.ErrUserNotFound)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.conn(ctx).Order("username asc").Find(&users).Error
	return users, translate(err, apperrors.ErrUserNotFound)
}

func (s *Store) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := s.conn(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at).Error
	return translate(err, apperrors.ErrUserNotFound)
}

// DeleteUser removes a user who created no projects. Memberships,
// assignments and refresh tokens go with the user; comments and attachments
// stay behind with their author or uploader cleared.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	db := s.conn(ctx)

	var owned int64
	if err := db.Model(&models.Project{}).Where("creator_id = ?", id).Count(&owned).Error; err != nil {
		return translate(err, apperrors.ErrUserNotFound)
	}
	if owned > 0 {
		return apperrors.ErrUserOwnsProjects
	}

	if err := db.Model(&models.Comment{}).Where("author_id = ?", id).Update("author_id", nil).Error; err != nil {
		return translate(err, apperrors.ErrUserNotFound)
	}
	if err := db.Model(&models.Attachment{}).Where("uploader_id = ?", id).Update("uploader_id", nil).Error; err != nil {
		return translate(err, apperrors.ErrUserNotFound)
	}
	for _, m := range []interface{}{&models.ProjectMembership{}, &models.TaskAssignment{}, &models.SubTaskAssignment{}, &models.Token{}} {
		if err := db.Where("user_id = ?", id).Delete(m).Error; err != nil {
			return translate(err, apperrors.ErrUserNotFound)
		}
	}

	res := db.Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, apperrors.ErrUserNotFound)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (s *Store) CreateToken(ctx context.Context, token *models.Token) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(token).Error, apperrors.ErrInvalidToken)
}

// ConsumeRefreshToken deletes a live refresh token and returns it. A token
// can be consumed once; a second caller sees ErrInvalidToken.
func (s *Store) ConsumeRefreshToken(ctx context.Context, refreshToken string, now time.Time) (*models.Token, error) {
	var token models.Token
	if err := s.conn(ctx).First(&token, "refresh_token = ? AND expires_at > ?", refreshToken, now).Error; err != nil {
		return nil, translate(err, apperrors.ErrInvalidToken)
	}

	res := s.conn(ctx).Delete(&models.Token{}, "id = ?", token.ID)
	if res.Error != nil {
		return nil, translate(res.Error, apperrors.ErrInvalidToken)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrInvalidToken
	}
	return &token, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return translate(s.conn(ctx).Delete(&models.Token{}, "refresh_token = ?", refreshToken).Error, apperrors.ErrInvalidToken)
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res := s.conn(ctx).Delete(&models.Token{}, "expires_at <= ?", now)
	return res.RowsAffected, translate(res.Error, apperrors.ErrInvalidToken)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return translate(s.conn(ctx).Create(entry).Error, apperrors.ErrNotFound)
}

type AuditFilter struct {
	UserID   *uuid.UUID
	Decision string
	Limit    int
}

func (s *Store) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]models.AuditLog, error) {
	q := s.conn(ctx).Model(&models.AuditLog{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Decision != "" {
		q = q.Where("decision = ?", filter.Decision)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.AuditLog
	err := q.Order("timestamp desc").Limit(limit).Find(&logs).Error
	return logs, translate(err, apperrors.ErrNotFound)
}
