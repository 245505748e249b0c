package errors

import "net/http"

// Error code constants for the cascade engine and its API surface.
// Errors carry code + params; messages are logged in English.

// Project/aggregate error codes.
const (
	CodeProjectNotFound = "PROJECT_NOT_FOUND"
	CodeInvoiceNotFound = "INVOICE_NOT_FOUND"
	CodeTenantMismatch  = "TENANT_MISMATCH"
)

// Cascade error codes.
const (
	CodeEventMalformed      = "EVENT_MALFORMED"
	CodeEventUnknownType    = "EVENT_UNKNOWN_TYPE"
	CodeHandlerFailed       = "HANDLER_FAILED"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeEventDeadLettered   = "EVENT_DEAD_LETTERED"
	CodeValidationFailed    = "VALIDATION_FAILED"
)

// Notification error codes.
const (
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	CodeDeliveryFailed       = "NOTIFICATION_DELIVERY_FAILED"
	CodeUnknownChannel       = "UNKNOWN_CHANNEL"
)

// Convenience constructors using predefined codes.

// ErrProjectNotFoundf creates a project not found error. Referenced-project-
// missing is fatal and non-retryable for the cascade.
func ErrProjectNotFoundf(projectID string) *AppError {
	return (&AppError{
		Code:       CodeProjectNotFound,
		Message:    "project not found",
		HTTPStatus: http.StatusNotFound,
	}).WithParams(map[string]interface{}{"project_id": projectID})
}

// ErrEventMalformedf creates a validation error for an incomplete event.
func ErrEventMalformedf(reason string) *AppError {
	return &AppError{
		Code:       CodeEventMalformed,
		Message:    "domain event is malformed: " + reason,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// ErrConcurrencyConflictf creates a version conflict error for a project
// aggregate. The dispatcher retries these against a fresh snapshot.
func ErrConcurrencyConflictf(projectID string) *AppError {
	return (&AppError{
		Code:       CodeConcurrencyConflict,
		Message:    "project aggregate version conflict",
		HTTPStatus: http.StatusConflict,
	}).WithParams(map[string]interface{}{"project_id": projectID})
}
