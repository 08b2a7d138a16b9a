package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrForbidden           = errors.New("goal does not belong to requesting account")
	// ErrConflict means another scope committed a write to the same record
	// between this operation's read and its commit.
	ErrConflict = errors.New("concurrent modification, retry the request")
	// ErrIdempotencyConflict means the original request carrying this key is
	// still in flight.
	ErrIdempotencyConflict = errors.New("request with this idempotency key is in progress")
	// ErrIdempotencyMismatch means the key was reused with a different payload.
	ErrIdempotencyMismatch = errors.New("idempotency key reused with a different payload")
)

// ValidationError carries a field-keyed message map for malformed or
// out-of-range input. All validation errors are raised before any mutation
// begins.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("validation failed")
	for _, k := range keys {
		fmt.Fprintf(&b, "; %s: %s", k, e.Fields[k])
	}
	return b.String()
}
