package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of application roles a profile can hold.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole normalises and validates a role name.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

// IsStaff reports whether the role manages classes and students.
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleTeacher:
		return true
	case RoleStudent:
		return false
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// UserProfile describes what an authenticated identity may do. It is keyed by the identity id.
type UserProfile struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Email      string    `gorm:"size:255;index;not null" json:"email"`
	Role       Role      `gorm:"size:16;not null" json:"role"`
	StudentRef *string   `gorm:"size:36;index" json:"student_ref,omitempty"`
	IsDeleted  bool      `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
