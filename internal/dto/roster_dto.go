package dto

import (
	"time"

	"github.com/noah-isme/gema-roster-api/internal/models"
)

// ClassCreateRequest captures a new homeroom class.
type ClassCreateRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Grade       string `json:"grade" validate:"omitempty,max=32"`
	TeacherName string `json:"teacher_name" validate:"omitempty,max=255"`
}

// ClassUpdateRequest captures partial updates of a class.
type ClassUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Grade       *string `json:"grade" validate:"omitempty,max=32"`
	TeacherName *string `json:"teacher_name" validate:"omitempty,max=255"`
}

// ClassResponse serializes a class.
type ClassResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Grade       string    `json:"grade"`
	TeacherName string    `json:"teacher_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClassDeleteResponse reports the cascade of a class deletion.
type ClassDeleteResponse struct {
	ID              string `json:"id"`
	StudentsRemoved int64  `json:"students_removed"`
}

// StudentCreateRequest adds a student to a class.
type StudentCreateRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Email       string `json:"email" validate:"required,email"`
	ClassID     string `json:"class_id" validate:"required"`
	StudentCode string `json:"student_code" validate:"omitempty,max=64"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female"`
	Birthdate   string `json:"birthdate" validate:"omitempty,max=32"`
	PhotoURL    string `json:"photo_url" validate:"omitempty,url"`
}

// StudentUpdateRequest captures partial updates of a roster student.
type StudentUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	StudentCode *string `json:"student_code" validate:"omitempty,max=64"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
	Gender      *string `json:"gender" validate:"omitempty,oneof=male female"`
	Birthdate   *string `json:"birthdate" validate:"omitempty,max=32"`
	PhotoURL    *string `json:"photo_url" validate:"omitempty,url"`
}

// StudentListRequest defines filters for listing students.
type StudentListRequest struct {
	Page     int
	PageSize int
	Search   string
	ClassID  string
	Sort     string
}

// StudentResponse serializes a roster student. The verification code itself is never exposed.
type StudentResponse struct {
	ID                        string     `json:"id"`
	Name                      string     `json:"name"`
	Email                     string     `json:"email"`
	ClassID                   string     `json:"class_id"`
	ClassName                 string     `json:"class_name"`
	StudentCode               string     `json:"student_code,omitempty"`
	Phone                     string     `json:"phone,omitempty"`
	Gender                    string     `json:"gender,omitempty"`
	Birthdate                 string     `json:"birthdate,omitempty"`
	PhotoURL                  string     `json:"photo_url,omitempty"`
	CodeState                 string     `json:"code_state"`
	VerificationCodeCreatedAt *time.Time `json:"verification_code_created_at,omitempty"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
	DeletedAt                 *time.Time `json:"deleted_at,omitempty"`
}

// StudentListResponse wraps a paginated student list.
type StudentListResponse struct {
	Items      []StudentResponse `json:"items"`
	Pagination PaginationMeta    `json:"pagination"`
}

// RecordCreateRequest is shared by every record kind; which fields are required depends on the kind.
type RecordCreateRequest struct {
	Title       string     `json:"title" validate:"omitempty,max=255"`
	Description string     `json:"description" validate:"omitempty,max=4000"`
	Type        string     `json:"type" validate:"omitempty,max=64"`
	Subject     string     `json:"subject" validate:"omitempty,max=64"`
	Value       *float64   `json:"value" validate:"omitempty,gte=0,lte=10"`
	Content     string     `json:"content" validate:"omitempty,max=4000"`
	Date        *time.Time `json:"date"`
}

// RecordResponse serializes any student record.
type RecordResponse struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Value       *float64  `json:"value,omitempty"`
	Content     string    `json:"content,omitempty"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScoreStats summarizes scores overall or for one subject.
type ScoreStats struct {
	Subject string  `json:"subject,omitempty"`
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
	Lowest  float64 `json:"lowest"`
	Highest float64 `json:"highest"`
}

// ScoreSummary is returned as list metadata next to a student's scores.
type ScoreSummary struct {
	ScoreStats
	Subjects []ScoreStats `json:"subjects"`
}

// DashboardResponse aggregates roster counters for staff.
type DashboardResponse struct {
	TotalClasses      int64             `json:"total_classes"`
	TotalStudents     int64             `json:"total_students"`
	NewStudentsLast7d int64             `json:"new_students_last_7_days"`
	RecentClasses     []ClassResponse   `json:"recent_classes"`
	RecentStudents    []StudentResponse `json:"recent_students"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// NewClassResponse converts a class model into a DTO.
func NewClassResponse(class models.Class) ClassResponse {
	return ClassResponse{
		ID:          class.ID,
		Name:        class.Name,
		Grade:       class.Grade,
		TeacherName: class.TeacherName,
		CreatedAt:   class.CreatedAt,
	}
}

// NewStudentResponse converts a student profile into a DTO.
func NewStudentResponse(student models.StudentProfile) StudentResponse {
	return StudentResponse{
		ID:                        student.ID,
		Name:                      student.Name,
		Email:                     student.Email,
		ClassID:                   student.ClassID,
		ClassName:                 student.ClassName,
		StudentCode:               student.StudentCode,
		Phone:                     student.Phone,
		Gender:                    student.Gender,
		Birthdate:                 student.Birthdate,
		PhotoURL:                  student.PhotoURL,
		CodeState:                 student.CodeState(),
		VerificationCodeCreatedAt: student.VerificationCodeCreatedAt,
		CreatedAt:                 student.CreatedAt,
		UpdatedAt:                 student.UpdatedAt,
		DeletedAt:                 student.DeletedAt,
	}
}

// NewStudentResponseSlice converts a list of student profiles.
func NewStudentResponseSlice(students []models.StudentProfile) []StudentResponse {
	responses := make([]StudentResponse, 0, len(students))
	for _, student := range students {
		responses = append(responses, NewStudentResponse(student))
	}
	return responses
}

// NewAchievementResponse converts an achievement.
func NewAchievementResponse(record models.StudentAchievement) RecordResponse {
	return RecordResponse{
		ID:          record.ID,
		StudentID:   record.StudentID,
		Kind:        "achievements",
		Title:       record.Title,
		Description: record.Description,
		Type:        record.Type,
		Date:        record.Date,
		CreatedAt:   record.CreatedAt,
	}
}

// NewConductResponse converts a conduct entry.
func NewConductResponse(record models.StudentConduct) RecordResponse {
	return RecordResponse{
		ID:          record.ID,
		StudentID:   record.StudentID,
		Kind:        "conduct",
		Description: record.Description,
		Type:        record.Type,
		Date:        record.Date,
		CreatedAt:   record.CreatedAt,
	}
}

// NewScoreResponse converts a score.
func NewScoreResponse(record models.StudentScore) RecordResponse {
	value := record.Value
	return RecordResponse{
		ID:        record.ID,
		StudentID: record.StudentID,
		Kind:      "scores",
		Subject:   record.Subject,
		Value:     &value,
		Type:      record.Type,
		Date:      record.Date,
		CreatedAt: record.CreatedAt,
	}
}

// NewNoteResponse converts a note.
func NewNoteResponse(record models.StudentNote) RecordResponse {
	return RecordResponse{
		ID:        record.ID,
		StudentID: record.StudentID,
		Kind:      "notes",
		Content:   record.Content,
		Date:      record.Date,
		CreatedAt: record.CreatedAt,
	}
}
