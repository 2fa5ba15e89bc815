package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType categorizes pipeline failures.
type ErrorType string

const (
	// ErrorTypeValidation covers malformed parameters: out-of-range k,
	// unknown reduction names, mismatched normalization methods. Raised
	// before any computation starts.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeData covers well-formed calls over degenerate inputs:
	// empty anchor sets, zero-variance features, cell-count mismatches.
	ErrorTypeData ErrorType = "data"
	// ErrorTypeComputation covers numeric failures (SVD non-convergence etc).
	ErrorTypeComputation ErrorType = "computation"
	// ErrorTypeStorage covers on-disk matrix access failures.
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeConfiguration covers process configuration failures.
	ErrorTypeConfiguration ErrorType = "configuration"
)

// StructuredError carries the stage, parameter, and cause of a failure
// so the orchestrator can compose one user-facing message.
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Stack     []uintptr
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new structured error.
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, errType ErrorType, operation, message string) *StructuredError {
	if err == nil {
		return nil
	}
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// WithContext adds context information to an error.
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithParam records the offending parameter name. Every validation error
// must carry one.
func (e *StructuredError) WithParam(name string) *StructuredError {
	return e.WithContext("param", name)
}

// Param returns the offending parameter name, if recorded.
func (e *StructuredError) Param() string {
	if e.Context == nil {
		return ""
	}
	if p, ok := e.Context["param"].(string); ok {
		return p
	}
	return ""
}

// IsType reports whether err (or anything it wraps) is a StructuredError
// of the given type.
func IsType(err error, errType ErrorType) bool {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Type == errType
	}
	return false
}

// captureStack captures the current stack trace.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(2, pcs[:])
	return pcs[:n]
}

// Common error constructors for frequent use cases

// NewValidationError creates a validation error carrying the offending
// parameter name.
func NewValidationError(operation, param, message string) *StructuredError {
	return New(ErrorTypeValidation, operation, message).WithParam(param)
}

// NewDataError creates a data error.
func NewDataError(operation, message string) *StructuredError {
	return New(ErrorTypeData, operation, message)
}

// NewComputationError creates a computation error.
func NewComputationError(operation, message string) *StructuredError {
	return New(ErrorTypeComputation, operation, message)
}

// NewStorageError creates a storage error.
func NewStorageError(operation, message string) *StructuredError {
	return New(ErrorTypeStorage, operation, message)
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(operation, message string) *StructuredError {
	return New(ErrorTypeConfiguration, operation, message)
}

// WrapDataError wraps an error as a data error.
func WrapDataError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeData, operation, message)
}

// WrapComputationError wraps an error as a computation error.
func WrapComputationError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeComputation, operation, message)
}

// WrapStorageError wraps an error as a storage error.
func WrapStorageError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeStorage, operation, message)
}

// WrapConfigurationError wraps an error as a configuration error.
func WrapConfigurationError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeConfiguration, operation, message)
}
