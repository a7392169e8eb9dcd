package common

import (
	"errors"
	"fmt"
)

var (
	// ErrReleased is returned by every operation on a map after Release
	ErrReleased = errors.New("named map has been released")
	// ErrDestroyed is returned by every operation on a map after it was destroyed
	ErrDestroyed = errors.New("named map has been destroyed")
	// ErrClosed is returned once the owning session is closed
	ErrClosed = errors.New("session is closed")
	// ErrDone signals the normal end of a cursor
	ErrDone = errors.New("no more items in cursor")
	// ErrChannelNotReady is returned when the channel did not become ready in time
	ErrChannelNotReady = errors.New("channel not ready")
	// ErrStreamReset resolves acknowledgements that were in flight when the event stream failed
	ErrStreamReset = errors.New("event stream was reset")
	// ErrInvalidListener is returned for nil listeners and listener values that can not be compared
	ErrInvalidListener = errors.New("invalid listener")
)

// RequestError is a failure reported by the proxy for a single request.
type RequestError struct {
	Op  string
	Msg string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s failed: %s", e.Op, e.Msg)
}

// DeserializationError is returned by lazy accessors when the stored bytes
// cannot be decoded. It occurs at first access, not when the holder was created.
type DeserializationError struct {
	Field string
	Err   error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("cannot deserialize %s: %v", e.Field, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}
