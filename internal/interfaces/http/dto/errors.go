package dto

import "net/http"

// Error codes surfaced by the API. Domain errors carry these codes
// directly; the map below decides the HTTP status for each.
const (
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeBadRequest = "BAD_REQUEST"

	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"

	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeConflict      = "CONCURRENCY_CONFLICT"

	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeInvalidState = "INVALID_STATE"
	ErrCodeValidation   = "VALIDATION"

	ErrCodeQuotaExceeded      = "QUOTA_EXCEEDED"
	ErrCodeConnectionInactive = "CONNECTION_INACTIVE"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,

	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeValidation:   http.StatusUnprocessableEntity,

	ErrCodeQuotaExceeded:      http.StatusTooManyRequests,
	ErrCodeConnectionInactive: http.StatusConflict,
	ErrCodeRateLimited:        http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
