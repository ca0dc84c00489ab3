// Package errors defines the sentinel errors shared across the archive
// service, plus a small wrapper type that attaches a human-readable message
// while remaining matchable with errors.Is.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound is returned by the store when a document id is
	// out of range or not yet committed.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidMessage is returned by the wire codec when a message is
	// truncated, carries a malformed payload, or contains invalid UTF-8.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownTag is returned by the wire codec for an unrecognized
	// leading tag byte.
	ErrUnknownTag = errors.New("unknown message tag")
	// ErrMessageTooLarge is returned when a length prefix exceeds the
	// codec's allocation cap.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrPoolClosed is returned by Submit once pool shutdown has begun.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrServerStopped is returned when an operation races with shutdown.
	ErrServerStopped = errors.New("server stopped")
)

// ArchiveError wraps a sentinel with context about the failing operation.
type ArchiveError struct {
	Err     error
	Message string
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel error with a message.
func New(sentinel error, message string) *ArchiveError {
	return &ArchiveError{Err: sentinel, Message: message}
}

// Newf wraps a sentinel error with a formatted message.
func Newf(sentinel error, format string, args ...any) *ArchiveError {
	return &ArchiveError{Err: sentinel, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a not-found outcome rather than a
// transport or protocol failure. Not-found retrieves map to a Failure
// response but are not logged as errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}
