package model

import (
	"time"

	"github.com/google/uuid"
)

// GradeBreakdown records which rubric stage produced a submission's score and why.
type GradeBreakdown struct {
	Stage       string  `json:"stage"`
	Reason      string  `json:"reason"`
	Score       int     `json:"score"`
	MaxMarks    int     `json:"max_marks"`
	TestsPassed int     `json:"tests_passed"`
	TestsTotal  int     `json:"tests_total"`
	PassRate    float64 `json:"pass_rate"`
}

// ExamSubmission is one (attempt, question) submission row. Created on first
// submit, updated last-write-wins on resubmission before lock, never recreated
// after grading.
type ExamSubmission struct {
	ID         uuid.UUID       `json:"id"`
	AttemptID  uuid.UUID       `json:"attempt_id"`
	QuestionID uuid.UUID       `json:"question_id"`
	Code       string          `json:"code"`
	Locked     bool            `json:"locked"`
	Score      *int            `json:"score,omitempty"`
	Breakdown  *GradeBreakdown `json:"breakdown,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SubmitCodeRequest is the payload for submitting or drafting question code.
type SubmitCodeRequest struct {
	Code string `json:"code" binding:"required,notblank,max=65536"`
}

// RunCodeRequest is the payload for the non-scored "run code" action.
type RunCodeRequest struct {
	Code  string `json:"code" binding:"required,notblank,max=65536"`
	Stdin string `json:"stdin" binding:"omitempty,max=16384"`
}
