// Package errors provides the tagged error type shared by the sync engine.
// Every failure crossing the transport or storage boundary is wrapped in a
// SyncError carrying an explicit Kind, so the drain classifier never has to
// inspect error message strings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a sync failure. The drain loop switches exhaustively on
// these values.
type Kind string

const (
	// KindNetwork means the request never produced an HTTP response:
	// offline, unreachable host, timeout. Pauses the whole drain pass.
	KindNetwork Kind = "network"

	// KindConflict is an HTTP 409: the server's copy has diverged and wins.
	KindConflict Kind = "conflict"

	// KindClient is any other 4xx: the action can never succeed by retrying.
	KindClient Kind = "client_error"

	// KindServer is a 5xx: transient, retried with backoff.
	KindServer Kind = "server_error"

	// KindStorage is a local persistence failure (mirror or action log).
	KindStorage Kind = "storage"
)

// Operation identifies where in the engine an error occurred.
type Operation string

const (
	OpEnqueue   Operation = "enqueue"
	OpDrain     Operation = "drain"
	OpExecute   Operation = "execute"
	OpFetch     Operation = "fetch"
	OpReconcile Operation = "reconcile"
	OpStore     Operation = "store"
	OpLoad      Operation = "load"
	OpClose     Operation = "close"
)

// SyncError is the structured error produced at the engine's boundaries.
type SyncError struct {
	// Op is the operation during which the error occurred.
	Op Operation

	// Component that generated the error (e.g. "transport", "store").
	Component string

	// Kind tags the failure class for the classifier.
	Kind Kind

	// Status is the HTTP status code when the error came from a response,
	// zero otherwise.
	Status int

	// Err is the underlying cause.
	Err error

	// Retryable reports whether retrying the operation can succeed.
	Retryable bool
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s operation failed", e.Op)
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	}
	if e.Kind != "" {
		msg += fmt.Sprintf(" [%s]", e.Kind)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a network-related SyncError.
func NewNetworkError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindNetwork,
		Op:        op,
		Component: "transport",
		Err:       cause,
		Retryable: true,
	}
}

// NewConflictError creates a 409-related SyncError.
func NewConflictError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindConflict,
		Op:        op,
		Component: "transport",
		Status:    http.StatusConflict,
		Err:       cause,
		Retryable: false,
	}
}

// NewClientError creates a permanent 4xx SyncError.
func NewClientError(op Operation, status int, cause error) *SyncError {
	return &SyncError{
		Kind:      KindClient,
		Op:        op,
		Component: "transport",
		Status:    status,
		Err:       cause,
		Retryable: false,
	}
}

// NewServerError creates a transient 5xx SyncError.
func NewServerError(op Operation, status int, cause error) *SyncError {
	return &SyncError{
		Kind:      KindServer,
		Op:        op,
		Component: "transport",
		Status:    status,
		Err:       cause,
		Retryable: true,
	}
}

// NewStorageError creates a local-persistence SyncError.
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindStorage,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// FromStatus classifies a non-2xx HTTP status into a SyncError.
// Callers must not pass 2xx statuses; those are not errors.
func FromStatus(op Operation, status int, cause error) *SyncError {
	switch {
	case status == http.StatusConflict:
		return NewConflictError(op, cause)
	case status >= 400 && status < 500:
		return NewClientError(op, status, cause)
	default:
		return NewServerError(op, status, cause)
	}
}

// KindOf extracts the Kind from an error chain. Untagged errors report
// KindNetwork, the conservative class: nothing is dropped for them.
func KindOf(err error) Kind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return KindNetwork
}

// IsRetryable checks whether an error chain contains a retryable SyncError.
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// StatusOf returns the HTTP status recorded on the error chain, or zero.
func StatusOf(err error) int {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Status
	}
	return 0
}
