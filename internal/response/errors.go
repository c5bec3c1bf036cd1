package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Session ───────────────────────────────────────────────────────
	ErrInvalidPaper           ErrCode = "INVALID_PAPER"
	ErrInvalidNavigation      ErrCode = "INVALID_NAVIGATION"
	ErrInvalidStateTransition ErrCode = "INVALID_STATE_TRANSITION"
	ErrUnknownQuestion        ErrCode = "UNKNOWN_QUESTION"
	ErrSessionNotFound        ErrCode = "SESSION_NOT_FOUND"
	ErrPaperNotFound          ErrCode = "PAPER_NOT_FOUND"
	ErrSessionFinished        ErrCode = "SESSION_FINISHED"
	ErrAttemptNotFound        ErrCode = "ATTEMPT_NOT_FOUND"
	ErrPersistence            ErrCode = "PERSISTENCE_ERROR"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrInvalidPaper:
		return "This paper cannot be taken."
	case ErrInvalidNavigation:
		return "That question cannot be opened."
	case ErrInvalidStateTransition:
		return "This action is not allowed in the current session state."
	case ErrUnknownQuestion:
		return "The question is not part of this paper."
	case ErrSessionNotFound:
		return "No session exists for this paper."
	case ErrPaperNotFound:
		return "Paper not found."
	case ErrSessionFinished:
		return "This session has already ended."
	case ErrAttemptNotFound:
		return "No finished attempt was recorded for this paper."
	case ErrPersistence:
		return "Your progress could not be saved. It is kept on the server and will be retried."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please slow down."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
