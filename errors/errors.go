// Package errors provides the error classification used across the
// processing engine. Errors fall into four classes that decide how the
// pipeline reacts: validation errors are rejected before any mutation,
// processing errors abort a single frame traversal, driver errors are
// contained at the action-stage boundary, and fatal errors are the only
// class allowed to stop the pipeline.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sctg-development/rust-photoacoustic-sub001/pkg/retry"
)

// Class is the handling classification of an error.
type Class int

const (
	// ClassValidation covers malformed or out-of-range configuration,
	// unknown node types and invalid topologies. Always rejected before
	// any state mutation.
	ClassValidation Class = iota
	// ClassProcessing covers errors raised during one frame's traversal.
	// Isolated to that frame; the pipeline continues.
	ClassProcessing
	// ClassDriver covers failures talking to an external sink. Caught at
	// the action-stage boundary, counted, never propagated upward.
	ClassDriver
	// ClassFatal covers resource exhaustion and unrecoverable internal
	// faults. The only class that stops the pipeline.
	ClassFatal
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassProcessing:
		return "processing"
	case ClassDriver:
		return "driver"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	// Graph and node construction errors
	ErrUnknownNodeType  = errors.New("unknown node type")
	ErrDuplicateNodeID  = errors.New("duplicate node id")
	ErrNodeNotFound     = errors.New("node not found")
	ErrCyclicGraph      = errors.New("graph contains a cycle")
	ErrDisconnectedNode = errors.New("node has no inbound connection")
	ErrShapeMismatch    = errors.New("incompatible frame shapes")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Frame processing errors
	ErrUnsupportedShape = errors.New("unsupported input shape")
	ErrEmptyFrame       = errors.New("empty frame")

	// Lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrAlreadyStopped = errors.New("already stopped")
	ErrShuttingDown   = errors.New("shutting down")

	// Driver errors
	ErrDriverUnavailable = errors.New("driver unavailable")
	ErrDriverTimeout     = errors.New("driver timeout")

	// Fatal conditions
	ErrResourceExhausted = errors.New("resource exhausted")
)

// ClassifiedError carries an error together with its handling class and
// the stage/operation where it was raised.
type ClassifiedError struct {
	Class     Class
	Err       error
	Stage     string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Wrap creates a standardized error with context following the pattern
// "stage.operation: action failed: %w".
func Wrap(err error, stage, operation, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", stage, operation, action, err)
}

func newClassified(class Class, err error, stage, operation, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Err:       Wrap(err, stage, operation, action),
		Stage:     stage,
		Operation: operation,
	}
}

// WrapValidation wraps an error as a validation failure.
func WrapValidation(err error, stage, operation, action string) error {
	return newClassified(ClassValidation, err, stage, operation, action)
}

// WrapProcessing wraps an error as a frame-scoped processing failure.
func WrapProcessing(err error, stage, operation, action string) error {
	return newClassified(ClassProcessing, err, stage, operation, action)
}

// WrapDriver wraps an error as a driver failure.
func WrapDriver(err error, stage, operation, action string) error {
	return newClassified(ClassDriver, err, stage, operation, action)
}

// WrapFatal wraps an error as fatal.
func WrapFatal(err error, stage, operation, action string) error {
	return newClassified(ClassFatal, err, stage, operation, action)
}

// IsValidation reports whether an error is a validation failure.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassValidation
	}

	return errors.Is(err, ErrUnknownNodeType) ||
		errors.Is(err, ErrDuplicateNodeID) ||
		errors.Is(err, ErrCyclicGraph) ||
		errors.Is(err, ErrDisconnectedNode) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// IsFatal reports whether an error must stop the pipeline.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassFatal
	}

	if errors.Is(err, ErrResourceExhausted) {
		return true
	}

	// Third-party code paths surface these only as message text.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"out of memory", "disk full", "panic"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// IsDriver reports whether an error originates from an action driver.
func IsDriver(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassDriver
	}

	return errors.Is(err, ErrDriverUnavailable) || errors.Is(err, ErrDriverTimeout)
}

// IsTransient reports whether an error is worth retrying. Used by drivers
// when deciding whether to re-attempt delivery to an external sink.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if IsValidation(err) || IsFatal(err) {
		return false
	}

	if errors.Is(err, ErrDriverTimeout) ||
		errors.Is(err, ErrDriverUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "unavailable", "temporary", "busy"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// Classify returns the handling class for an error. Unknown errors default
// to processing so a single bad frame never takes the pipeline down.
func Classify(err error) Class {
	if err == nil {
		return ClassProcessing
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	switch {
	case IsValidation(err):
		return ClassValidation
	case IsFatal(err):
		return ClassFatal
	case IsDriver(err):
		return ClassDriver
	default:
		return ClassProcessing
	}
}

// RetryPolicy describes how driver deliveries are retried.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy returns the delivery retry policy used by drivers
// unless configured otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// ToRetryConfig converts the policy to the retry framework's Config.
// MaxRetries counts additional attempts beyond the first.
func (p RetryPolicy) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  p.MaxRetries + 1,
		InitialDelay: p.InitialDelay,
		MaxDelay:     p.MaxDelay,
		Multiplier:   p.Multiplier,
		AddJitter:    true,
	}
}
