// Package errors provides the application error taxonomy shared by the
// Hub and the Client Runtime.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Coordination-fabric specific kinds.
	ErrCodeTimeoutTooLarge        = "TIMEOUT_TOO_LARGE"
	ErrCodeWaitAlreadyActive      = "WAIT_ALREADY_ACTIVE"
	ErrCodeThreadClosed           = "THREAD_CLOSED"
	ErrCodeNotAParticipant        = "NOT_A_PARTICIPANT"
	ErrCodeMentionNotParticipant  = "MENTION_NOT_PARTICIPANT"
	ErrCodeUnknownAgent           = "UNKNOWN_AGENT"
	ErrCodeDuplicateAgent         = "DUPLICATE_AGENT"
	ErrCodeProtocolError          = "PROTOCOL_ERROR"
	ErrCodeTransportError         = "TRANSPORT_ERROR"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// BadRequest creates a new bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Unauthorized creates a new unauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a new forbidden error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:       ErrCodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Conflict creates a new conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrCodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a new validation error for a specific field.
func ValidationError(field string, message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidationError,
		Message:    fmt.Sprintf("validation failed for field '%s': %s", field, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// ServiceUnavailable creates a new service unavailable error.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("service '%s' is currently unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// TimeoutTooLarge signals a waitForMentions call whose timeoutMs argument
// exceeded the Hub's maximum. The client must clamp and retry.
func TimeoutTooLarge(requested, max int) *AppError {
	return &AppError{
		Code:       ErrCodeTimeoutTooLarge,
		Message:    fmt.Sprintf("requested timeout %dms exceeds maximum %dms", requested, max),
		HTTPStatus: http.StatusBadRequest,
	}
}

// WaitAlreadyActive signals a second concurrent waitForMentions for the
// same agent. This is a client bug and must be fixed upstream.
func WaitAlreadyActive(agentID string) *AppError {
	return &AppError{
		Code:       ErrCodeWaitAlreadyActive,
		Message:    fmt.Sprintf("agent '%s' already has an active waitForMentions call", agentID),
		HTTPStatus: http.StatusConflict,
	}
}

// ThreadClosed signals a post to a thread that has already been closed.
func ThreadClosed(threadID string) *AppError {
	return &AppError{
		Code:       ErrCodeThreadClosed,
		Message:    fmt.Sprintf("thread '%s' is closed", threadID),
		HTTPStatus: http.StatusConflict,
	}
}

// NotAParticipant signals an operation performed by or targeting an
// agent that is not a participant of the thread in question.
func NotAParticipant(threadID, agentID string) *AppError {
	return &AppError{
		Code:       ErrCodeNotAParticipant,
		Message:    fmt.Sprintf("agent '%s' is not a participant of thread '%s'", agentID, threadID),
		HTTPStatus: http.StatusBadRequest,
	}
}

// MentionNotParticipant signals a sendMessage whose mentions are not a
// subset of the thread's participants.
func MentionNotParticipant(threadID, agentID string) *AppError {
	return &AppError{
		Code:       ErrCodeMentionNotParticipant,
		Message:    fmt.Sprintf("mentioned agent '%s' is not a participant of thread '%s'", agentID, threadID),
		HTTPStatus: http.StatusBadRequest,
	}
}

// UnknownAgent signals a reference to an agentId with no live session.
func UnknownAgent(agentID string) *AppError {
	return &AppError{
		Code:       ErrCodeUnknownAgent,
		Message:    fmt.Sprintf("agent '%s' is not currently registered", agentID),
		HTTPStatus: http.StatusNotFound,
	}
}

// DuplicateAgent signals an openSession rejected because agentID already
// has a live session and the Hub is configured to reject rather than
// displace (strict mode).
func DuplicateAgent(agentID string) *AppError {
	return &AppError{
		Code:       ErrCodeDuplicateAgent,
		Message:    fmt.Sprintf("agent '%s' already has a live session", agentID),
		HTTPStatus: http.StatusConflict,
	}
}

// ProtocolError signals a malformed frame (missing discriminator, bad
// envelope). The session carrying it is terminated.
func ProtocolError(message string) *AppError {
	return &AppError{
		Code:       ErrCodeProtocolError,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// TransportError signals a broken push channel or failed send. The
// Client Runtime recovers from this locally via retry/reconnect.
func TransportError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeTransportError,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	// Otherwise, wrap as an internal error
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsBadRequest checks if the error is a bad request error.
func IsBadRequest(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeBadRequest || appErr.Code == ErrCodeValidationError
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

