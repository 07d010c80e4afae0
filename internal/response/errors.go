package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrEmailTaken         ErrCode = "EMAIL_TAKEN"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden      ErrCode = "FORBIDDEN"
	ErrInstructorOnly ErrCode = "INSTRUCTOR_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam / attempt ────────────────────────────────────────────────
	ErrExamNotAvailable   ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotDraft       ErrCode = "EXAM_NOT_DRAFT"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrNoActiveAttempt    ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrAttemptFinalized   ErrCode = "ATTEMPT_FINALIZED"
	ErrAttemptGraceLocked ErrCode = "ATTEMPT_GRACE_LOCKED"
	ErrQuestionLocked     ErrCode = "QUESTION_LOCKED"
	ErrQuestionNotInSet   ErrCode = "QUESTION_NOT_IN_SET"

	// ─── Execution Gateway ─────────────────────────────────────────────
	ErrExecutionFailed ErrCode = "EXECUTION_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrEmailTaken:
		return "An account with this email already exists."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrInstructorOnly:
		return "This resource is restricted to instructors."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid id format."
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrExamNotDraft:
		return "This exam is not in DRAFT status."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrNoActiveAttempt:
		return "No active attempt for this exam."
	case ErrAttemptFinalized:
		return "This attempt has already been submitted."
	case ErrAttemptGraceLocked:
		return "The violation limit has been reached; this attempt is being submitted."
	case ErrQuestionLocked:
		return "This question has already been submitted and is locked."
	case ErrQuestionNotInSet:
		return "This question is not part of your attempt."
	case ErrExecutionFailed:
		return "Code execution failed. Please try again."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
