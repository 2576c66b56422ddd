package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the error type surfaced by every bulkstep operation.
//
// Error kinds:
//   - Configuration: bad step size, missing or unknown fields, unsupported mode
//   - Type mismatch: diffing or executing across incompatible entity types
//   - Cyclic dependency: the foreign-key graph of the requested types has a cycle
//   - Store operation: the store rejected a chunk
//
// None of these are retried by the engine.
type Error struct {
	// Code identifies the error kind.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EntityType names the affected type, when there is one.
	EntityType string

	// Mode is the bulk mode in flight (store operation errors).
	Mode string

	// Chunk is the zero-based index of the failed chunk (store operation errors).
	Chunk int

	// Applied counts the chunks applied before the failure (store operation errors).
	Applied int

	// Types lists the entity types in a dependency cycle.
	Types []string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	ErrCodeConfiguration    ErrorCode = "CONFIGURATION"
	ErrCodeTypeMismatch     ErrorCode = "TYPE_MISMATCH"
	ErrCodeCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"
	ErrCodeStoreOperation   ErrorCode = "STORE_OPERATION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	var details []string
	if e.EntityType != "" {
		details = append(details, "type="+e.EntityType)
	}
	if e.Mode != "" {
		details = append(details, "mode="+e.Mode)
	}
	if e.Code == ErrCodeStoreOperation {
		details = append(details, fmt.Sprintf("chunk=%d", e.Chunk+1), fmt.Sprintf("applied=%d", e.Applied))
	}
	if len(details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(details, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates an Error for invalid call configuration.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewTypeMismatchError creates an Error for entities of incompatible types.
func NewTypeMismatchError(want, got string) *Error {
	return &Error{
		Code:       ErrCodeTypeMismatch,
		Message:    fmt.Sprintf("entity types %q and %q are not comparable", want, got),
		EntityType: want,
	}
}

// NewCyclicDependencyError creates an Error naming the types on a cycle.
// cycle is a closed path such as ["A", "B", "A"].
func NewCyclicDependencyError(cycle []string) *Error {
	members := make([]string, 0, len(cycle))
	seen := make(map[string]bool, len(cycle))
	for _, name := range cycle {
		if !seen[name] {
			seen[name] = true
			members = append(members, name)
		}
	}
	return &Error{
		Code:    ErrCodeCyclicDependency,
		Message: fmt.Sprintf("cyclic foreign-key dependency: %s", strings.Join(cycle, " → ")),
		Types:   members,
	}
}

// NewStoreOperationError wraps a store failure on one chunk.
func NewStoreOperationError(entityType, mode string, chunk, applied int, err error) *Error {
	return &Error{
		Code:       ErrCodeStoreOperation,
		Message:    "store rejected chunk",
		EntityType: entityType,
		Mode:       mode,
		Chunk:      chunk,
		Applied:    applied,
		Err:        err,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfigurationError returns true if err is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	return CodeOf(err) == ErrCodeConfiguration
}

// IsTypeMismatchError returns true if err is a type mismatch error.
func IsTypeMismatchError(err error) bool {
	return CodeOf(err) == ErrCodeTypeMismatch
}

// IsCyclicDependencyError returns true if err is a cyclic dependency error.
func IsCyclicDependencyError(err error) bool {
	return CodeOf(err) == ErrCodeCyclicDependency
}

// IsStoreOperationError returns true if err is a store operation error.
func IsStoreOperationError(err error) bool {
	return CodeOf(err) == ErrCodeStoreOperation
}
