package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Class groups students under a homeroom.
type Class struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Grade       string    `gorm:"size:32" json:"grade"`
	TeacherName string    `gorm:"size:255" json:"teacher_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (c *Class) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// StudentAchievement records an award or accomplishment.
type StudentAchievement struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	StudentID   string    `gorm:"size:36;index;not null" json:"student_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Type        string    `gorm:"size:64;not null" json:"type"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// StudentConduct records a behaviour evaluation.
type StudentConduct struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	StudentID   string    `gorm:"size:36;index;not null" json:"student_id"`
	Type        string    `gorm:"size:64;not null" json:"type"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// StudentScore records a single graded result on a 0-10 scale.
type StudentScore struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	StudentID string    `gorm:"size:36;index;not null" json:"student_id"`
	Subject   string    `gorm:"size:64;not null" json:"subject"`
	Value     float64   `gorm:"not null" json:"value"`
	Type      string    `gorm:"size:64;not null" json:"type"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// StudentNote is a free-form remark left by staff.
type StudentNote struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	StudentID string    `gorm:"size:36;index;not null" json:"student_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *StudentAchievement) BeforeCreate(tx *gorm.DB) error { return assignID(&r.ID) }
func (r *StudentConduct) BeforeCreate(tx *gorm.DB) error     { return assignID(&r.ID) }
func (r *StudentScore) BeforeCreate(tx *gorm.DB) error       { return assignID(&r.ID) }
func (r *StudentNote) BeforeCreate(tx *gorm.DB) error        { return assignID(&r.ID) }

func assignID(id *string) error {
	if *id == "" {
		*id = uuid.NewString()
	}
	return nil
}

// All returns every model managed by the roster database, in migration order.
func All() []interface{} {
	return []interface{}{
		&Identity{},
		&UserProfile{},
		&Class{},
		&StudentProfile{},
		&StudentAchievement{},
		&StudentConduct{},
		&StudentScore{},
		&StudentNote{},
		&ActivityLog{},
	}
}
