package models

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

var ErrAttachmentParent = errors.New("attachment must reference exactly one of task or subtask")

// Attachment is the record half of an uploaded file; the bytes live in the
// blob store under StorageKey. Exactly one of TaskID and SubTaskID is set.
type Attachment struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	FileName    string     `json:"file_name" gorm:"size:255;not null"`
	StorageKey  string     `json:"-" gorm:"size:64;uniqueIndex;not null"`
	Size        int64      `json:"size" gorm:"not null"`
	ContentType string     `json:"content_type" gorm:"size:127"`
	UploaderID  *uuid.UUID `json:"uploader_id" gorm:"type:uuid;index"`
	TaskID      *uuid.UUID `json:"task_id,omitempty" gorm:"type:uuid;index"`
	SubTaskID   *uuid.UUID `json:"subtask_id,omitempty" gorm:"type:uuid;index;column:sub_task_id"`
	UploadedAt  time.Time  `json:"uploaded_at"`

	Uploader User    `json:"-" gorm:"foreignKey:UploaderID;constraint:OnDelete:SET NULL"`
	Task     Task    `json:"-" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	SubTask  SubTask `json:"-" gorm:"foreignKey:SubTaskID;constraint:OnDelete:CASCADE"`
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if err := a.ValidateParent(); err != nil {
		return err
	}
	if a.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		a.ID = id
	}
	return nil
}

func (a *Attachment) ValidateParent() error {
	if (a.TaskID == nil) == (a.SubTaskID == nil) {
		return ErrAttachmentParent
	}
	return nil
}

func (a *Attachment) IsUploadedBy(userID uuid.UUID) bool {
	return a.UploaderID != nil && *a.UploaderID == userID
}

// All lists every model in dependency order for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Token{},
		&AuditLog{},
		&Project{},
		&ProjectMembership{},
		&Task{},
		&TaskAssignment{},
		&SubTask{},
		&SubTaskAssignment{},
		&Comment{},
		&Attachment{},
	}
}
