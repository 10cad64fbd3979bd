package services

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// NotFoundError is returned when an artwork or image identifier does not resolve.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ConflictError is returned when an artwork identifier is already in use.
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("artwork id %q already in use", e.ID)
}

// ValidationError reports unusable caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// DatabaseError wraps unexpected persistence failures.
type DatabaseError struct {
	Op    string
	Inner error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database operation %s failed: %v", e.Op, e.Inner)
}

func (e *DatabaseError) Unwrap() error {
	return e.Inner
}

// wrapDBError maps gorm errors onto the catalog's error taxonomy.
func wrapDBError(err error, op, kind, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &ConflictError{ID: id}
	}
	return &DatabaseError{Op: op, Inner: err}
}

// HTTPStatus maps a service error to an HTTP status and a stable error code.
func HTTPStatus(err error) (int, string) {
	var notFound *NotFoundError
	var conflict *ConflictError
	var invalid *ValidationError
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &conflict):
		return http.StatusConflict, "conflict"
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "validation_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
