package dto

import "net/http"

// Transport-level error codes. Domain errors keep the code they were raised
// with (NOT_FOUND, BALANCE_DIVERGENCE, ...); these cover failures that never
// reach the application layer.
const (
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeTokenExpired   = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid   = "INVALID_TOKEN"
	ErrCodeRequestTooBig  = "REQUEST_TOO_LARGE"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeMissingFile    = "MISSING_FILE"
	ErrCodeMissingContext = "MISSING_OPERATION_CONTEXT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Malformed requests -> 400
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeMissingFile:        http.StatusBadRequest,
	"INVALID_INPUT":           http.StatusBadRequest,
	"INVALID_RANGE":           http.StatusBadRequest,
	"INVALID_PERIOD":          http.StatusBadRequest,
	"INVALID_AMOUNT":          http.StatusBadRequest,
	"INVALID_DATE":            http.StatusBadRequest,
	"INVALID_MEMBER":          http.StatusBadRequest,
	"INVALID_MACHINE":         http.StatusBadRequest,
	"INVALID_NAME":            http.StatusBadRequest,
	"INVALID_QUANTITY":        http.StatusBadRequest,
	"INVALID_TARGET":          http.StatusBadRequest,
	"INVALID_REFERENCE":       http.StatusBadRequest,
	"INVALID_POSTING_TYPE":    http.StatusBadRequest,
	"INVALID_BILLING_MODE":    http.StatusBadRequest,
	"INVALID_CONVERSION_RATE": http.StatusBadRequest,
	"MISSING_METER":           http.StatusBadRequest,
	"APPROVAL_INVALID_ACTION": http.StatusBadRequest,

	// Identity -> 401/403
	ErrCodeUnauthorized:      http.StatusUnauthorized,
	ErrCodeTokenExpired:      http.StatusUnauthorized,
	ErrCodeTokenInvalid:      http.StatusUnauthorized,
	ErrCodeMissingContext:    http.StatusUnauthorized,
	"FORBIDDEN":              http.StatusForbidden,
	"APPROVAL_SAME_IDENTITY": http.StatusForbidden,

	// Missing resources -> 404
	ErrCodeNotFound:      http.StatusNotFound,
	"APPROVAL_NOT_FOUND": http.StatusNotFound,

	// State conflicts -> 409
	"ALREADY_EXISTS":         http.StatusConflict,
	"CONCURRENCY_CONFLICT":   http.StatusConflict,
	"BALANCE_DIVERGENCE":     http.StatusConflict,
	"ALREADY_CLASSIFIED":     http.StatusConflict,
	"NOT_CLASSIFIED":         http.StatusConflict,
	"OPENING_BALANCE_EXISTS": http.StatusConflict,

	// Business rules -> 422
	"IMPORT_CONFIGURATION": http.StatusUnprocessableEntity,
	"IMPORT_PARSE":         http.StatusUnprocessableEntity,
	"INVALID_DIRECTION":    http.StatusUnprocessableEntity,
	"INVALID_STATE":        http.StatusUnprocessableEntity,
	"ACCOUNT_HALTED":       http.StatusUnprocessableEntity,
	"ACCOUNT_MISMATCH":     http.StatusUnprocessableEntity,
	"INSUFFICIENT_CREDIT":  http.StatusUnprocessableEntity,
	"APPROVAL_EXPIRED":     http.StatusUnprocessableEntity,
	"APPROVAL_MISMATCH":    http.StatusUnprocessableEntity,

	"APPROVAL_INVALID_SUBJECT": http.StatusUnprocessableEntity,

	ErrCodeRequestTooBig: http.StatusRequestEntityTooLarge,
	"FILE_TOO_LARGE":     http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:   http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes are treated as internal errors.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
