package session

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation on a closed session.
	ErrClosed = errors.New("session: closed")
	// ErrInvalidState is returned when an operation is not allowed in the
	// current state.
	ErrInvalidState = errors.New("session: operation not allowed in current state")
)

// ErrorKind classifies the recoverable failures of a session.
type ErrorKind int

const (
	CameraUnavailable ErrorKind = iota + 1
	CaptureFailed
	CompositionFailed
	UploadFailed
)

func (k ErrorKind) String() string {
	switch k {
	case CameraUnavailable:
		return "camera_unavailable"
	case CaptureFailed:
		return "capture_failed"
	case CompositionFailed:
		return "composition_failed"
	case UploadFailed:
		return "upload_failed"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a session failure of a given kind wrapping its cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a session *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
