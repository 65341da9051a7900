package store

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrBackendUnavailable covers connectivity problems, timeouts and
	// cancelled requests. Retrying is safe.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendOperationFailed covers faults reported by the backend itself.
	ErrBackendOperationFailed = errors.New("backend operation failed")
)

// BackendError carries the failing operation, its kind and the cause.
type BackendError struct {
	Op   string
	Kind error
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func Unavailable(op string, err error) error {
	return &BackendError{Op: op, Kind: ErrBackendUnavailable, Err: err}
}

func OperationFailed(op string, err error) error {
	return &BackendError{Op: op, Kind: ErrBackendOperationFailed, Err: err}
}

// Classify wraps err as unavailable when it is a context or network error and
// as an operation failure otherwise. Errors already classified pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	if IsTransient(err) {
		return Unavailable(op, err)
	}
	return OperationFailed(op, err)
}

// IsTransient reports whether err looks like a connectivity or timeout fault.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
