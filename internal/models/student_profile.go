package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StudentProfile is the roster record for a student, whether or not they ever signed in.
type StudentProfile struct {
	ID                        string     `gorm:"primaryKey;size:36" json:"id"`
	Name                      string     `gorm:"size:255;not null" json:"name"`
	Email                     string     `gorm:"size:255;index;not null" json:"email"`
	ClassID                   string     `gorm:"size:36;index" json:"class_id"`
	ClassName                 string     `gorm:"size:255" json:"class_name"`
	StudentCode               string     `gorm:"size:64" json:"student_code"`
	Phone                     string     `gorm:"size:32" json:"phone"`
	Gender                    string     `gorm:"size:16" json:"gender"`
	Birthdate                 string     `gorm:"size:32" json:"birthdate"`
	PhotoURL                  string     `gorm:"size:512" json:"photo_url"`
	VerificationCode          *string    `gorm:"size:16" json:"-"`
	VerificationCodeCreatedAt *time.Time `json:"verification_code_created_at,omitempty"`
	IsDeleted                 bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt                 *time.Time `json:"deleted_at,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (s *StudentProfile) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// HasCode reports whether a verification code has been issued for the student.
func (s StudentProfile) HasCode() bool {
	return s.VerificationCode != nil && *s.VerificationCode != ""
}

// CodeState names the lifecycle stage of the student's verification code.
func (s StudentProfile) CodeState() string {
	switch {
	case s.IsDeleted:
		return StudentCodeStateDeleted
	case s.HasCode():
		return StudentCodeStateIssued
	default:
		return StudentCodeStateNone
	}
}

const (
	StudentCodeStateNone    = "no_code"
	StudentCodeStateIssued  = "code_issued"
	StudentCodeStateDeleted = "deleted"
)
