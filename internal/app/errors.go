package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDocumentNotFound indicates the target document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrTenantNotFound indicates the target tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
)

// ValidationError carries field-level messages for a rejected write. It is
// raised before any persistence or attachment side effect happens.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Fields[key]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldError returns the message recorded for a field, if any.
func (e *ValidationError) FieldError(field string) (string, bool) {
	msg, ok := e.Fields[field]
	return msg, ok
}
