package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingToken means no session token could be obtained from the
	// initialize response by any extraction strategy.
	ErrMissingToken = errors.New("session token missing")

	// ErrNoMatchingResponse means the response body held no envelope with an id.
	ErrNoMatchingResponse = errors.New("no matching response")
)

// SessionError is fatal to the current session. The session is reset and the
// next call initializes again.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// RemoteError is an error envelope returned by the server, or a response that
// could not be correlated with its request.
type RemoteError struct {
	Method  string
	Code    int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("remote error calling %s (code %d): %s", e.Method, e.Code, msg)
	}
	return fmt.Sprintf("remote error calling %s: %s", e.Method, msg)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// TimeoutError means no response arrived before the call deadline.
type TimeoutError struct {
	Method string
	ID     string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s (id %s) timed out after %s", e.Method, e.ID, e.After)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Timeout lets callers treat the error like a net.Error.
func (e *TimeoutError) Timeout() bool { return true }

// IsTransient reports whether err is worth retrying: timeouts, session loss
// and plain transport failures. Remote error envelopes are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return false
	}
	return true
}
