package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam definition.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam represents a timed mock exam definition.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	AuthorID        int       `json:"author_id"`
	Category        string    `json:"category"`
	DurationMinutes int       `json:"duration_minutes"`
	// QuestionCount is the N of "pick N of M questions per attempt".
	// Zero means every question is presented in its defined order.
	QuestionCount  int        `json:"question_count"`
	ViolationLimit int        `json:"violation_limit"`
	Language       string     `json:"language"`
	Status         ExamStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string `json:"title" binding:"required,notblank,min=3,max=255"`
	Category        string `json:"category" binding:"omitempty,max=100"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=480"`
	QuestionCount   int    `json:"question_count" binding:"min=0"`
	ViolationLimit  int    `json:"violation_limit" binding:"omitempty,min=1,max=10"`
	Language        string `json:"language" binding:"omitempty,max=32"`
}

// UpdateExamRequest is the payload for updating an existing draft exam.
type UpdateExamRequest struct {
	Title           string `json:"title" binding:"omitempty,min=3,max=255"`
	Category        string `json:"category" binding:"omitempty,max=100"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	QuestionCount   *int   `json:"question_count" binding:"omitempty,min=0"`
	ViolationLimit  *int   `json:"violation_limit" binding:"omitempty,min=1,max=10"`
	Language        string `json:"language" binding:"omitempty,max=32"`
}
