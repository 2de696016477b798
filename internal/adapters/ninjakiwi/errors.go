package ninjakiwi

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Every error returned by Client wraps exactly one of
// them, so callers can switch with errors.Is.
var (
	ErrServer            = errors.New("server error")
	ErrUnderMaintenance  = errors.New("under maintenance")
	ErrBadRequest        = errors.New("bad request")
	ErrMalformedResponse = errors.New("malformed response")
	ErrRequestFailed     = errors.New("request failed")
	ErrApplication       = errors.New("application error")
)

// Error describes a failed fetch.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error
	// Path is the request path relative to the origin.
	Path string
	// Status is the HTTP status, zero when no response was received.
	Status int
	// Message is the server-supplied error string for ErrApplication.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ninjakiwi: GET %s: %v", e.Path, e.Kind)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message returns the server-supplied message carried by err, if any.
func Message(err error) (string, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message, true
	}
	return "", false
}

// kindLabel names an error kind for metrics.
func kindLabel(err error) string {
	switch {
	case errors.Is(err, ErrUnderMaintenance):
		return "maintenance"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrApplication):
		return "application"
	case errors.Is(err, ErrRequestFailed):
		return "request_failed"
	default:
		return "other"
	}
}
