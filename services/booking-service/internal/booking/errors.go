package booking

import (
	"errors"
	"fmt"
)

// Error kinds. Storage returns ErrNotFound and ErrConflict directly; the
// manager wraps every user-facing failure in *Error.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("conflict")
)

const conflictMessage = "the requested time conflicts with an existing appointment"

// Error is a failure the caller should see verbatim.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func notFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...any) error {
	return &Error{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error {
	return &Error{Kind: ErrBadRequest, Message: fmt.Sprintf(format, args...)}
}

func conflict() error {
	return &Error{Kind: ErrConflict, Message: conflictMessage}
}

// userError maps bare storage sentinels to user-facing errors; anything else
// passes through unchanged.
func userError(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return notFound("%s", notFoundMsg)
	case errors.Is(err, ErrConflict):
		return conflict()
	}
	return err
}
