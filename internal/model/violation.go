package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind categorizes anti-cheating signals.
type ViolationKind string

const (
	ViolationTabSwitch      ViolationKind = "tab-switch"
	ViolationCopyPaste      ViolationKind = "copy-paste"
	ViolationFullscreenExit ViolationKind = "fullscreen"
	ViolationDevtools       ViolationKind = "devtools"
)

// ValidViolationKind reports whether k is one of the tracked kinds.
func ValidViolationKind(k ViolationKind) bool {
	switch k {
	case ViolationTabSwitch, ViolationCopyPaste, ViolationFullscreenExit, ViolationDevtools:
		return true
	}
	return false
}

// ViolationEvent is one recorded anti-cheating event within an attempt.
type ViolationEvent struct {
	AttemptID  uuid.UUID     `json:"attempt_id"`
	UserID     int           `json:"user_id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	Kind       ViolationKind `json:"kind"`
	Detail     string        `json:"detail,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}
