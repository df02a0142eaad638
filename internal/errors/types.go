package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeTransform ErrorType = "transform"
	ErrorTypeIO        ErrorType = "io"
	ErrorTypeInternal  ErrorType = "internal"
)

// KilnError is a structured error type with context.
//
// Recoverable errors are scoped to a single file: they are reported and the
// batch continues. Everything else aborts the command.
type KilnError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Class       string
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *KilnError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Class != "" {
		parts = append(parts, "class:"+e.Class)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *KilnError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *KilnError) Is(target error) bool {
	var t *KilnError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *KilnError) WithContext(key string, value interface{}) *KilnError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithFile adds the file the error belongs to.
func (e *KilnError) WithFile(filePath string) *KilnError {
	e.FilePath = filePath

	return e
}

// WithClass adds the asset class the error belongs to.
func (e *KilnError) WithClass(class string) *KilnError {
	e.Class = class

	return e
}

// Detail returns the message and cause without code or location, suitable
// for operator notifications.
func (e *KilnError) Detail() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}

	return e.Message
}

// Error creation functions

// NewConfigError creates a configuration error. Configuration errors are fatal.
func NewConfigError(code, message string, cause error) *KilnError {
	return &KilnError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewTransformError creates a per-file transform error.
func NewTransformError(code, message string, cause error) *KilnError {
	return &KilnError{
		Type:        ErrorTypeTransform,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates a per-file I/O error.
func NewIOError(code, message string, cause error) *KilnError {
	return &KilnError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewOutputDirError creates the fatal I/O error raised when an output
// directory cannot be created or written.
func NewOutputDirError(dir string, cause error) *KilnError {
	return &KilnError{
		Type:        ErrorTypeIO,
		Code:        ErrCodeOutputDir,
		Message:     "output directory is not writable: " + dir,
		Cause:       cause,
		FilePath:    dir,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *KilnError {
	return &KilnError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error recovery and handling utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ke *KilnError
	if errors.As(err, &ke) {
		return ke.Recoverable
	}

	return false
}

// IsFatal reports whether err must terminate the command. Unknown errors are
// treated as fatal.
func IsFatal(err error) bool {
	return err != nil && !IsRecoverable(err)
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

func hasType(err error, t ErrorType) bool {
	var ke *KilnError
	if errors.As(err, &ke) {
		return ke.Type == t
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger   Logger
	notifier Notifier
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// Notifier receives operator-facing notifications. The title is the asset
// class the failure belongs to.
type Notifier interface {
	Notify(title, message string) error
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger, notifier Notifier) *ErrorHandler {
	return &ErrorHandler{
		logger:   logger,
		notifier: notifier,
	}
}

// Handle logs err and, for recoverable per-file errors, notifies the operator.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var ke *KilnError
	if errors.As(err, &ke) {
		h.handleKilnError(ctx, ke)
	} else {
		h.handleGenericError(ctx, err)
	}
}

func (h *ErrorHandler) handleKilnError(ctx context.Context, err *KilnError) {
	switch {
	case err.Recoverable:
		if h.logger != nil {
			h.logger.Warn(ctx, err, "Asset failed",
				"type", err.Type,
				"code", err.Code,
				"class", err.Class,
				"file", err.FilePath)
		}
		if h.notifier != nil {
			message := err.Detail()
			if err.FilePath != "" {
				message = err.FilePath + ": " + message
			}
			if nerr := h.notifier.Notify(err.Class, message); nerr != nil && h.logger != nil {
				h.logger.Warn(ctx, nerr, "Notification failed", "class", err.Class)
			}
		}
	default:
		if h.logger != nil {
			h.logger.Error(ctx, err, "Fatal error",
				"type", err.Type,
				"code", err.Code,
				"class", err.Class)
		}
	}
}

func (h *ErrorHandler) handleGenericError(ctx context.Context, err error) {
	if h.logger != nil {
		h.logger.Error(ctx, err, "Unhandled error occurred")
	}
}

// Common error codes.
const (
	ErrCodeBadGlob         = "ERR_BAD_GLOB"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeUnknownClass    = "ERR_UNKNOWN_CLASS"
	ErrCodeTransformFailed = "ERR_TRANSFORM_FAILED"
	ErrCodeCompilerMissing = "ERR_COMPILER_MISSING"
	ErrCodeIncludeFailed   = "ERR_INCLUDE_FAILED"
	ErrCodeReadFailed      = "ERR_READ_FAILED"
	ErrCodeWriteFailed     = "ERR_WRITE_FAILED"
	ErrCodeOutputDir       = "ERR_OUTPUT_DIR"
	ErrCodeCacheFailed     = "ERR_CACHE_FAILED"
	ErrCodeInternalError   = "ERR_INTERNAL"
)

// Helper functions for common errors

// ErrBadGlob creates the configuration error for a malformed glob pattern.
func ErrBadGlob(pattern string) *KilnError {
	return NewConfigError(ErrCodeBadGlob, "malformed glob pattern: "+pattern, nil).
		WithContext("pattern", pattern)
}

// ErrUnknownClass creates the configuration error for an unknown asset class name.
func ErrUnknownClass(name string) *KilnError {
	return NewConfigError(ErrCodeUnknownClass, "unknown asset class: "+name, nil)
}

// ErrTransformFailed wraps a transform failure for one file.
func ErrTransformFailed(class, path string, cause error) *KilnError {
	return NewTransformError(ErrCodeTransformFailed, "transform failed", cause).
		WithClass(class).
		WithFile(path)
}
