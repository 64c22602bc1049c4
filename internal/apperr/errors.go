package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// HTTPError is implemented by errors that map to an HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// ValidationError reports invalid input. Fields carries per-field messages
// keyed by field id (or request attribute) when they are known.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) StatusCode() int      { return http.StatusBadRequest }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError indicates an unknown template or submission id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) StatusCode() int      { return http.StatusNotFound }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError is returned for stale template versions and for deletes that
// would orphan submissions.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string        { return e.Message }
func (e *ConflictError) StatusCode() int      { return http.StatusConflict }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// PersistenceError wraps a store failure (unreachable or write rejected).
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error   { return e.Err }
func (e *PersistenceError) StatusCode() int { return http.StatusInternalServerError }

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func Conflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func Persistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// StatusCode resolves the HTTP status for err, defaulting to 500.
func StatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return http.StatusInternalServerError
}
