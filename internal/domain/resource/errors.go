package resource

import (
	"errors"
	"fmt"
	"strings"
)

// Domain error kinds.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrNotLoaded         = errors.New("resource not loaded")
	ErrFieldMissing      = errors.New("field missing")
	ErrFieldType         = errors.New("field has unexpected type")
	ErrInvalidDefinition = errors.New("invalid resource definition")
)

// Error is returned by loaders and field accessors.
type Error struct {
	// Kind is a sentinel from this package or from the fetch layer.
	Kind error
	// Resource is the definition kind, e.g. "user".
	Resource string
	// ID of the resource, when known.
	ID string
	// Field is set for accessor errors.
	Field string
	// Message is the server message that was translated, if any.
	Message string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("resource")
	if e.Resource != "" {
		fmt.Fprintf(&b, " %s", e.Resource)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " %q", e.ID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
