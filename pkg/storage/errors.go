package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all backends. Backends wrap them in *Error so
// callers can both classify with errors.Is and log the failing operation.
var (
	// ErrBlobNotFound indicates the URI resolves to no stored content.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrNotSupported indicates the backend cannot perform the operation,
	// for example range writes on object stores.
	ErrNotSupported = errors.New("operation not supported by storage backend")

	// ErrBackendClosed indicates the backend was shut down.
	ErrBackendClosed = errors.New("storage backend is closed")

	// ErrSizeLimitExceeded indicates a stream ran past the allowed size.
	ErrSizeLimitExceeded = errors.New("content size exceeds limit")

	// ErrSizeMismatch indicates a stream ended at a different size than the
	// caller declared.
	ErrSizeMismatch = errors.New("content size does not match expected size")

	// ErrInvalidURI indicates the URI cannot be mapped onto the backend.
	ErrInvalidURI = errors.New("invalid storage uri")

	// ErrInvalidRange indicates an offset or length outside the blob.
	ErrInvalidRange = errors.New("invalid byte range")
)

// Error decorates a backend failure with the operation and URI it happened
// on. The wrapped error carries the classification.
type Error struct {
	Op  string
	URI string
	Err error
}

func (e *Error) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.URI, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// OpError wraps err in an *Error unless it is nil or already one. Backends
// use it so every failure carries its operation and URI exactly once.
func OpError(op, uri string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, URI: uri, Err: err}
}
