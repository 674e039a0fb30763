// Package errors defines the error taxonomy of the data source layers and
// the handling policy attached to each class.
//
// The classes are:
//   - MalformedConfigurationError: irreconcilable configuration, aborts resolution
//   - MissingRecordError: recorded and degraded around, never returned
//   - FieldResolutionError: recorded per field, never returned
//   - ErrExhausted: normal end of iteration
//   - UnsupportedOperationError: recoverable, names the offending input
//   - ConfigLoadError: no storage form could be loaded, aborts the run load
//
// Categorize maps any error onto a Category, and WithRetryContext retries
// the transient ones.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: a shared-memory server that has not started yet.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: malformed configuration, a run with no readable storage.
	CategoryPermanent

	// CategoryRecoverable indicates the caller can continue with other input.
	// Examples: seeking a live stream, seeking a time not in the index.
	CategoryRecoverable

	// CategoryEndOfData indicates normal exhaustion of a sequence.
	CategoryEndOfData
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryRecoverable:
		return "recoverable"
	case CategoryEndOfData:
		return "end_of_data"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Attempts is the number of attempts that have been made.
	Attempts int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks an error as worth retrying.
func Transient(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Context: context}
}

// Permanent marks an error as final.
func Permanent(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Context: context}
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	if errors.Is(err, ErrExhausted) {
		return CategoryEndOfData
	}

	var unsupported *UnsupportedOperationError
	if errors.As(err, &unsupported) {
		return CategoryRecoverable
	}

	var malformed *MalformedConfigurationError
	if errors.As(err, &malformed) {
		return CategoryPermanent
	}

	var loadErr *ConfigLoadError
	if errors.As(err, &loadErr) {
		return CategoryPermanent
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		if storeErr.Temporary {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsExhausted reports whether the error marks the end of iteration.
func IsExhausted(err error) bool {
	return Categorize(err) == CategoryEndOfData
}

// IsRecoverable reports whether the caller can continue after the error.
func IsRecoverable(err error) bool {
	switch Categorize(err) {
	case CategoryRecoverable, CategoryEndOfData:
		return true
	}
	return false
}
