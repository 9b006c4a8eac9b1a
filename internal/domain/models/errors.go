package models

import "fmt"

// ValidationError is bad caller input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ExternalAPIError is a provider HTTP or connection failure, carried with
// the status code so callers can tell retryable classes apart.
type ExternalAPIError struct {
	Status  int
	Message string
	Err     error
}

func (e *ExternalAPIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("provider api: %s", e.Message)
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }

// Retryable reports whether the failure class is transient. 5xx responses,
// timeouts and aborted connections (Status == 0) are retried; 4xx is not.
func (e *ExternalAPIError) Retryable() bool {
	return e.Status == 0 || e.Status >= 500
}

// DatabaseError is a persistence collaborator failure. Surfaced on the
// direct write path, swallowed (logged only) on best-effort paths.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }
