package apperr

import "net/http"

// Stable machine-readable failure codes. Clients branch on Code, not on the
// human message: money-moving failures (INSUFFICIENT_FUNDS, CONFLICT) are
// retryable decisions, validation failures are not.
const (
	CodeValidation        = "VALIDATION"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternal          = "INTERNAL"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	HTTP    int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg, HTTP: http.StatusBadRequest}
}

func InsufficientFunds(msg string) *Error {
	return &Error{Code: CodeInsufficientFunds, Message: msg, HTTP: http.StatusBadRequest}
}

func InvalidTransition(msg string) *Error {
	return &Error{Code: CodeInvalidTransition, Message: msg, HTTP: http.StatusBadRequest}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg, HTTP: http.StatusNotFound}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg, HTTP: http.StatusConflict}
}

func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg, HTTP: http.StatusForbidden}
}

func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg, HTTP: http.StatusInternalServerError}
}
