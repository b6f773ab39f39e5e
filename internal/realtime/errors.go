package realtime

// Error codes emitted to the triggering connection. SERVICE_UNAVAILABLE is
// the only retryable one; clients treat the rest as permanent rejections of
// the offending event.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeBattleNotFound     = "BATTLE_NOT_FOUND"
	CodeNotParticipant     = "NOT_PARTICIPANT"
	CodePrivateBattle      = "PRIVATE_BATTLE"
	CodeForbidden          = "FORBIDDEN"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeAlreadyVoted       = "ALREADY_VOTED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is a caller-local failure. It is delivered on the error event and
// never closes the connection or leaks internal detail.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func validationError(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

func unavailableError(message string) *Error {
	return &Error{Code: CodeServiceUnavailable, Message: message}
}
