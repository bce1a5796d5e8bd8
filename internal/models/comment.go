package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Comment outlives its author: AuthorID becomes nil when the user is deleted.
type Comment struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	TaskID    uuid.UUID  `json:"task_id" gorm:"type:uuid;not null;index"`
	AuthorID  *uuid.UUID `json:"author_id" gorm:"type:uuid;index"`
	Text      string     `json:"text" gorm:"type:text;not null"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Task   Task `json:"-" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	Author User `json:"-" gorm:"foreignKey:AuthorID;constraint:OnDelete:SET NULL"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		c.ID = id
	}
	return nil
}

// IsAuthoredBy reports whether userID wrote the comment. Orphaned comments
// have no author and can no longer be edited by anyone.
func (c *Comment) IsAuthoredBy(userID uuid.UUID) bool {
	return c.AuthorID != nil && *c.AuthorID == userID
}
