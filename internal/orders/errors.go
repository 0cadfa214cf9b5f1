package orders

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; the message of a concrete *Error is
// meant to be shown to the caller as is.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrConflict       = errors.New("conflict")
)

type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

// Kind returns one of ErrNotFound, ErrInvalidRequest or ErrConflict.
func (e *Error) Kind() error { return e.kind }

func notFound(format string, args ...any) error {
	return &Error{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return &Error{kind: ErrInvalidRequest, msg: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

func insufficientStock(p Product, requested int) error {
	return invalid("insufficient stock for product %s, available %d, requested %d", p.Name, p.Stock, requested)
}
