package application

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when an operation clashes with existing state,
	// such as deleting a schedule that already has materialized trips.
	ErrConflict = errors.New("application: conflict")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) add(field, message string) {
	v.Add(field, message)
}

// DomainError reports an operation the domain rules forbid, with a stable
// machine-readable code.
type DomainError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return e.Message
}

// Domain error codes.
const (
	CodeOccurrenceNotScheduled  = "occurrence_not_scheduled"
	CodeOccurrenceSkipped       = "occurrence_skipped"
	CodeNoActiveRouteVersion    = "no_active_route_version"
	CodeInvalidStatusTransition = "invalid_status_transition"
	CodeTripNotMaterialized     = "trip_not_materialized"
)

func domainErrorf(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}
