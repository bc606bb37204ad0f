package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrConnection = errors.New("store unreachable")
	ErrValidation = errors.New("invalid measurement")
	ErrStatement  = errors.New("statement failed")
	ErrTimeout    = errors.New("store call timed out")
	ErrRender     = errors.New("chart rendering failed")
)

// Error attaches a kind and the failing operation to an underlying error.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func E(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidFields names the measurement fields, by their JSON names, that
// failed validation.
type InvalidFields []string

func (f InvalidFields) Error() string {
	return "invalid fields: " + strings.Join(f, ", ")
}

// IsRetryable reports whether the request may succeed when repeated as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}
