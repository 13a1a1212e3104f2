package stream

import (
	"errors"
	"fmt"
)

// Stream errors.
var (
	// ErrSessionClosed is returned by Push after Close.
	ErrSessionClosed = errors.New("stream: session closed")

	// ErrConcurrentPush is returned when two goroutines drive the same
	// session at once. A session is single-caller by contract; this error
	// turns a violation into a diagnosable failure instead of corrupted
	// frame state.
	ErrConcurrentPush = errors.New("stream: concurrent push on session")
)

// SessionError wraps a failure with the session and operation it came from.
type SessionError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("stream: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
