package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Project struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Name      string     `json:"name" gorm:"size:150;not null"`
	Goal      string     `json:"goal" gorm:"type:text"`
	StartDate time.Time  `json:"start_date" gorm:"not null"`
	EndDate   *time.Time `json:"end_date"`
	Archived  bool       `json:"archived" gorm:"not null;default:false"`
	CreatorID uuid.UUID  `json:"creator_id" gorm:"type:uuid;not null;index"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Creator User `json:"-" gorm:"foreignKey:CreatorID;constraint:OnDelete:RESTRICT"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		p.ID = id
	}
	return nil
}

// ProjectMembership is keyed by (project, user) so a user holds at most one
// membership per project.
type ProjectMembership struct {
	ProjectID uuid.UUID   `json:"project_id" gorm:"primaryKey;type:uuid"`
	UserID    uuid.UUID   `json:"user_id" gorm:"primaryKey;type:uuid;index"`
	Role      ProjectRole `json:"role" gorm:"type:varchar(16);not null"`
	JoinedAt  time.Time   `json:"joined_at"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	User    User    `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
