// Package pipeline sequences the warehouse steps and owns retry and run
// bookkeeping.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass determines how the runner reacts to a step failure.
type ErrorClass int

const (
	// ErrorClassNone means no error occurred
	ErrorClassNone ErrorClass = iota
	// ErrorClassSkippable covers single bad records; the step already
	// counted and skipped them
	ErrorClassSkippable
	// ErrorClassTransient covers failures worth retrying, connections and
	// timeouts mostly
	ErrorClassTransient
	// ErrorClassQuality means the gate blocked publication
	ErrorClassQuality
	// ErrorClassFatal halts the run immediately
	ErrorClassFatal
)

// String returns a string representation of the error class
func (c ErrorClass) String() string {
	switch c {
	case ErrorClassNone:
		return "None"
	case ErrorClassSkippable:
		return "Skippable"
	case ErrorClassTransient:
		return "Transient"
	case ErrorClassQuality:
		return "Quality"
	case ErrorClassFatal:
		return "Fatal"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// FatalError marks an error that must never be retried.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so Classify reports it as fatal.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// QualityError carries the gate result that blocked publication.
type QualityError struct {
	Failures []string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("quality gate failed: %s", strings.Join(e.Failures, "; "))
}

// Classify determines the class of a step error.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassNone
	}

	var fatal *FatalError
	if errors.As(err, &fatal) {
		return ErrorClassFatal
	}
	var quality *QualityError
	if errors.As(err, &quality) {
		return ErrorClassQuality
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTransient
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary") ||
		strings.Contains(msg, "deadline") ||
		strings.Contains(msg, "try again"):
		return ErrorClassTransient
	default:
		return ErrorClassFatal
	}
}
