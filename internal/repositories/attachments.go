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

func (s *Store) CreateAttachment(ctx context.Context, attachment *models.Attachment) error {
	if err := attachment.ValidateParent(); err != nil {
		return apperrors.ErrAmbiguousParent
	}
	return translate(s.conn(ctx).Omit(clause.Associations).Create(attachment).Error, apperrors.ErrAttachmentNotFound)
}

func (s *Store) GetAttachment(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	var attachment models.Attachment
	if err := s.conn(ctx).First(&attachment, "id = ?", id).Error; err != nil {
		return nil, translate(err, apperrors.ErrAttachmentNotFound)
	}
	return &attachment, nil
}

type AttachmentView struct {
	ID           uuid.UUID  `json:"id"`
	FileName     string     `json:"file_name"`
	Size         int64      `json:"size"`
	ContentType  string     `json:"content_type"`
	UploaderID   *uuid.UUID `json:"uploader_id"`
	UploaderName string     `json:"uploader_name"`
	TaskID       *uuid.UUID `json:"task_id,omitempty"`
	SubTaskID    *uuid.UUID `json:"subtask_id,omitempty" gorm:"column:sub_task_id"`
	UploadedAt   time.Time  `json:"uploaded_at"`
}

func (s *Store) attachmentViews(ctx context.Context) *gorm.DB {
	return s.conn(ctx).Model(&models.Attachment{}).
		Select("attachments.id, attachments.file_name, attachments.size, attachments.content_type, attachments.uploader_id, COALESCE(users.username, ?) AS uploader_name, attachments.task_id, attachments.sub_task_id, attachments.uploaded_at", UnknownUser).
		Joins("LEFT JOIN users ON users.id = attachments.uploader_id")
}

func (s *Store) ListTaskAttachments(ctx context.Context, taskID uuid.UUID) ([]AttachmentView, error) {
	var views []AttachmentView
	err := s.attachmentViews(ctx).
		Where("attachments.task_id = ?", taskID).
		Order("attachments.uploaded_at desc").
		Scan(&views).Error
	return views, translate(err, apperrors.ErrAttachmentNotFound)
}

func (s *Store) ListSubTaskAttachments(ctx context.Context, subTaskID uuid.UUID) ([]AttachmentView, error) {
	var views []AttachmentView
	err := s.attachmentViews(ctx).
		Where("attachments.sub_task_id = ?", subTaskID).
		Order("attachments.uploaded_at desc").
		Scan(&views).Error
	return views, translate(err, apperrors.ErrAttachmentNotFound)
}

func (s *Store) ListAllAttachments(ctx context.Context, page Page) ([]AttachmentView, int64, error) {
	var total int64
	if err := s.conn(ctx).Model(&models.Attachment{}).Count(&total).Error; err != nil {
		return nil, 0, translate(err, apperrors.ErrAttachmentNotFound)
	}

	var views []AttachmentView
	q := page.apply(s.attachmentViews(ctx), map[string]string{
		"uploaded_at": "attachments.uploaded_at",
		"file_name":   "attachments.file_name",
		"size":        "attachments.size",
	}, "uploaded_at")
	err := q.Scan(&views).Error
	return views, total, translate(err, apperrors.ErrAttachmentNotFound)
}

func (s *Store) DeleteAttachment(ctx context.Context, id uuid.UUID) error {
	res := s.conn(ctx).Delete(&models.Attachment{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, apperrors.ErrAttachmentNotFound)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrAttachmentNotFound
	}
	return nil
}

// AttachmentKeys returns every storage key that has a record.
func (s *Store) AttachmentKeys(ctx context.Context) (map[string]uuid.UUID, error) {
	type row struct {
		ID         uuid.UUID
		StorageKey string
	}
	var rows []row
	if err := s.conn(ctx).Model(&models.Attachment{}).Select("id, storage_key").Scan(&rows).Error; err != nil {
		return nil, translate(err, apperrors.ErrAttachmentNotFound)
	}

	keys := make(map[string]uuid.UUID, len(rows))
	for _, r := range rows {
		keys[r.StorageKey] = r.ID
	}
	return keys, nil
}

func (s *Store) AttachmentByStorageKey(ctx context.Context, key string) (*models.Attachment, error) {
	var attachment models.Attachment
	err := s.conn(ctx).First(&attachment, "storage_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrAttachmentNotFound
	}
	return &attachment, translate(err, apperrors.ErrAttachmentNotFound)
}
