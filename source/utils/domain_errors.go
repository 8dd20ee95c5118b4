package utils

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation")
	ErrTransientIO = errors.New("transient io")
	ErrForbidden   = errors.New("forbidden")
)

// DomainError carries the kind of failure (one of the Err* sentinels), the
// HTTP status it maps to and the internal error code shown to the user.
type DomainError struct {
	Status  int
	Code    int
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NotFound(code int, message string) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: code, Message: message, Err: ErrNotFound}
}

func Conflict(code int, message string) *DomainError {
	return &DomainError{Status: http.StatusConflict, Code: code, Message: message, Err: ErrConflict}
}

func Validation(code int, message string) *DomainError {
	return &DomainError{Status: http.StatusBadRequest, Code: code, Message: message, Err: ErrValidation}
}

func Forbidden(code int, message string) *DomainError {
	return &DomainError{Status: http.StatusForbidden, Code: code, Message: message, Err: ErrForbidden}
}

func Transient(code int, cause error) *DomainError {
	return &DomainError{Status: http.StatusServiceUnavailable, Code: code, Message: cause.Error(), Err: ErrTransientIO}
}

// ErrorKind returns the wire tag for err, or "" when err is not one of the
// known kinds.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTransientIO):
		return "transient"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}
	return ""
}

// KindError is the inverse of ErrorKind.
func KindError(kind string) error {
	switch kind {
	case "not_found":
		return ErrNotFound
	case "conflict":
		return ErrConflict
	case "validation":
		return ErrValidation
	case "transient":
		return ErrTransientIO
	case "forbidden":
		return ErrForbidden
	}
	return nil
}
