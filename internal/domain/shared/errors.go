package shared

import "fmt"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so wrapped variants
// created with Withf still match the sentinel via errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Withf returns a copy of the error with a more specific message
func (e *DomainError) Withf(format string, args ...any) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// Ledger and reconciliation errors
var (
	ErrInvalidRange        = NewDomainError("INVALID_RANGE", "Range end lies before range start")
	ErrInvalidDirection    = NewDomainError("INVALID_DIRECTION", "Classification target does not match the transaction direction")
	ErrConfiguration       = NewDomainError("IMPORT_CONFIGURATION", "Import profile is misconfigured")
	ErrParse               = NewDomainError("IMPORT_PARSE", "Value could not be parsed")
	ErrBalanceDivergence   = NewDomainError("BALANCE_DIVERGENCE", "Cached balance diverges from the ledger")
	ErrAccountHalted       = NewDomainError("ACCOUNT_HALTED", "Account is halted pending manual reconciliation")
	ErrMissingOperationCtx = NewDomainError("MISSING_OPERATION_CONTEXT", "Cooperative and acting admin are required")
)
