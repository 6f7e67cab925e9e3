package packgraph

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common conditions. They can be matched with
// errors.Is().
var (
	// ErrPackNotFound indicates the requested pack does not exist in the
	// graph.
	ErrPackNotFound = errors.New("pack not found")

	// ErrNodeNotFound indicates no graph node matches the requested path
	// or identifier.
	ErrNodeNotFound = errors.New("content item not found")

	// ErrInvalidConfig indicates the provided configuration is invalid or
	// incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a pack or content item was not
	// found.
	KindNotFound = "not_found"

	// KindValidation represents errors related to input validation,
	// including invalid content files.
	KindValidation = "validation"

	// KindStore represents errors raised by the graph store backend.
	KindStore = "store"

	// KindConflict represents errors where a concurrent operation holds a
	// resource, such as the graph update lock.
	KindConflict = "conflict"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindTimeout represents errors related to operation timeouts.
	KindTimeout = "timeout"

	// KindInternal represents internal errors.
	KindInternal = "internal"
)

// GraphError is a structured error type that wraps underlying errors with
// the operation that failed and the category of error.
//
// GraphError implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
type GraphError struct {
	// Op is the operation that failed (e.g., "Engine.Update",
	// "Store.CreateNodes").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindStore).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional),
	// such as pack ids or file paths.
	Context map[string]any
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("packgraph: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("packgraph: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("packgraph: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work with wrapped errors.
func (e *GraphError) Unwrap() error {
	return e.Err
}

// Is implements error matching for GraphError, allowing comparison based on
// the underlying error or on a GraphError template with matching Kind.
func (e *GraphError) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*GraphError); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the provided context merged
// in.
func (e *GraphError) WithContext(ctx map[string]any) *GraphError {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewNotFoundError creates a new GraphError with KindNotFound.
func NewNotFoundError(op string, err error) *GraphError {
	return &GraphError{Op: op, Kind: KindNotFound, Err: err}
}

// NewValidationError creates a new GraphError with KindValidation.
func NewValidationError(op string, err error) *GraphError {
	return &GraphError{Op: op, Kind: KindValidation, Err: err}
}

// NewStoreError creates a new GraphError with KindStore.
func NewStoreError(op string, err error) *GraphError {
	return &GraphError{Op: op, Kind: KindStore, Err: err}
}

// NewConflictError creates a new GraphError with KindConflict.
func NewConflictError(op string, err error) *GraphError {
	return &GraphError{Op: op, Kind: KindConflict, Err: err}
}

// NewConfigurationError creates a new GraphError with KindConfiguration.
func NewConfigurationError(op string, err error) *GraphError {
	return &GraphError{Op: op, Kind: KindConfiguration, Err: err}
}

// NewTimeoutError creates a new GraphError with KindTimeout.
func NewTimeoutError(op string, err error) *GraphError {
	return &GraphError{Op: op, Kind: KindTimeout, Err: err}
}

// NewInternalError creates a new GraphError with KindInternal.
func NewInternalError(op string, err error) *GraphError {
	return &GraphError{Op: op, Kind: KindInternal, Err: err}
}

// CloseWithLog attempts to close the provided resource and logs any error at
// warning level. Intended for defer statements so cleanup errors are not
// silently dropped.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
