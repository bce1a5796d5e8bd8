package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Task belongs to exactly one project for its whole life. CompletedAt is
// non-nil exactly when Status is Done.
type Task struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	ProjectID   uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;index"`
	Title       string     `json:"title" gorm:"size:200;not null"`
	Description string     `json:"description" gorm:"type:text"`
	Status      TaskStatus `json:"status" gorm:"type:varchar(16);not null;default:'ToDo';index"`
	Priority    Priority   `json:"priority" gorm:"type:varchar(16);not null;default:'Medium'"`
	DueDate     *time.Time `json:"due_date"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.Status == "" {
		t.Status = StatusToDo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return nil
}

type TaskAssignment struct {
	TaskID     uuid.UUID `json:"task_id" gorm:"primaryKey;type:uuid"`
	UserID     uuid.UUID `json:"user_id" gorm:"primaryKey;type:uuid;index"`
	AssignedAt time.Time `json:"assigned_at"`

	Task Task `json:"-" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

type SubTask struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	TaskID    uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index"`
	Title     string    `json:"title" gorm:"size:200;not null"`
	Completed bool      `json:"completed" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Task Task `json:"-" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

func (s *SubTask) BeforeCreate(tx *gorm.DB) error {
	if s.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		s.ID = id
	}
	return nil
}

type SubTaskAssignment struct {
	SubTaskID  uuid.UUID `json:"subtask_id" gorm:"primaryKey;type:uuid;column:sub_task_id"`
	UserID     uuid.UUID `json:"user_id" gorm:"primaryKey;type:uuid;index"`
	AssignedAt time.Time `json:"assigned_at"`

	SubTask SubTask `json:"-" gorm:"foreignKey:SubTaskID;constraint:OnDelete:CASCADE"`
	User    User    `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
