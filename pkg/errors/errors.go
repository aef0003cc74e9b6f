package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so callers can use errors.Is against the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// HasField reports whether the error carries a message for the given field.
func (e *Error) HasField(field string) bool {
	if e == nil {
		return false
	}
	_, ok := e.Fields[field]
	return ok
}

// FieldNames returns the offending field names in stable order.
func (e *Error) FieldNames() []string {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrFinalized          = New("FINALIZED", http.StatusConflict, "resource finalized")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// ErrGenerationFailure signals the content service could not produce a draft. Retryable.
	ErrGenerationFailure = New("GENERATION_FAILED", http.StatusBadGateway, "content generation failed")
	// ErrGradingFailure signals the content service could not grade a submission. Retryable.
	ErrGradingFailure = New("GRADING_FAILED", http.StatusBadGateway, "automated grading failed")
	// ErrRoster signals the roster collaborator rejected the request (e.g. unknown class).
	ErrRoster = New("ROSTER_ERROR", http.StatusNotFound, "roster rejected the request")
)

// NewValidationError builds a validation error carrying per-field messages.
func NewValidationError(fields map[string]string) *Error {
	err := Clone(ErrValidation, "")
	if len(fields) == 0 {
		return err
	}
	err.Fields = make(map[string]string, len(fields))
	names := make([]string, 0, len(fields))
	for name, msg := range fields {
		err.Fields[name] = msg
		names = append(names, name)
	}
	sort.Strings(names)
	err.Message = "invalid fields: " + strings.Join(names, ", ")
	return err
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	if err.Fields != nil {
		clone.Fields = make(map[string]string, len(err.Fields))
		for k, v := range err.Fields {
			clone.Fields[k] = v
		}
	}
	return &clone
}

// WrapClone clones a predefined error and attaches a cause.
func WrapClone(err *Error, cause error, message string) *Error {
	clone := Clone(err, message)
	if clone != nil {
		clone.Err = cause
	}
	return clone
}
