package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by every call made before Connect or
	// after Close.
	ErrNotConnected = errors.New("not connected to sync server")

	// ErrInvalidResponse is returned when the server's reply cannot be
	// decoded as the expected message.
	ErrInvalidResponse = errors.New("invalid server response")
)

// ConnectionError wraps a transport-level failure (dial, read, write).
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ServerError carries an error reply from the server.
type ServerError struct {
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Detail)
}

// HashMismatchError reports that a downloaded payload failed integrity
// verification. The assembled bytes must be discarded, never persisted.
type HashMismatchError struct {
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("pdf hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}
