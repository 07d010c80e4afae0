package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress    AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted     AttemptStatus = "SUBMITTED"
	AttemptStatusAutoSubmitted AttemptStatus = "AUTO_SUBMITTED"
	AttemptStatusGraded        AttemptStatus = "GRADED"
)

// Terminal reports whether the attempt can no longer accept submissions.
func (s AttemptStatus) Terminal() bool {
	return s != AttemptStatusInProgress
}

// SubmitReason records what triggered finalization of an attempt.
type SubmitReason string

const (
	SubmitReasonUser      SubmitReason = "user"
	SubmitReasonTime      SubmitReason = "time"
	SubmitReasonViolation SubmitReason = "violation"
)

// ExamAttempt identifies one user's timed attempt at one exam.
type ExamAttempt struct {
	ID              uuid.UUID             `json:"id"`
	ExamID          uuid.UUID             `json:"exam_id"`
	UserID          int                   `json:"user_id"`
	Status          AttemptStatus         `json:"status"`
	QuestionIDs     []uuid.UUID           `json:"question_ids"`
	StartedAt       time.Time             `json:"started_at"`
	SubmittedAt     *time.Time            `json:"submitted_at,omitempty"`
	SubmitReason    *SubmitReason         `json:"submit_reason,omitempty"`
	ElapsedMinutes  *int                  `json:"elapsed_minutes,omitempty"`
	ViolationCounts map[ViolationKind]int `json:"violation_counts"`
	FinalScore      *float64              `json:"final_score,omitempty"`
}

// Elapsed returns the attempt's elapsed time at the given instant, capped at
// the exam duration so elapsed time never exceeds the allowed window.
func (a *ExamAttempt) Elapsed(now time.Time, durationMinutes int) time.Duration {
	elapsed := now.Sub(a.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if max := time.Duration(durationMinutes) * time.Minute; elapsed > max {
		elapsed = max
	}
	return elapsed
}

// Remaining returns the wall-clock time left for the attempt, floored at zero.
func (a *ExamAttempt) Remaining(now time.Time, durationMinutes int) time.Duration {
	return time.Duration(durationMinutes)*time.Minute - a.Elapsed(now, durationMinutes)
}

// TotalViolations sums the per-kind violation counters.
func (a *ExamAttempt) TotalViolations() int {
	total := 0
	for _, n := range a.ViolationCounts {
		total += n
	}
	return total
}
