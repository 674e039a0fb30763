package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExhausted signals the normal end of an event sequence.
// It is not a failure: iteration helpers translate it into loop termination.
var ErrExhausted = errors.New("iteration exhausted")

// MalformedConfigurationError reports configuration records that cannot be
// reconciled, such as two Partition records in one snapshot.
type MalformedConfigurationError struct {
	// Run identifies the run being resolved.
	Run string
	// RecordType is the offending record type, e.g. "Partition".
	RecordType string
	// Count is how many records of the type were found.
	Count int
	// Sources lists the sources carrying the records.
	Sources []string
}

// Error implements the error interface.
func (e *MalformedConfigurationError) Error() string {
	msg := fmt.Sprintf("malformed configuration: %d %s records", e.Count, e.RecordType)
	if e.Run != "" {
		msg += " in " + e.Run
	}
	if len(e.Sources) > 0 {
		msg += " (" + strings.Join(e.Sources, ", ") + ")"
	}
	return msg
}

// MissingRecordError notes an expected record type that is absent. The
// resolver records these and degrades instead of failing.
type MissingRecordError struct {
	RecordType string
	Source     string
}

// Error implements the error interface.
func (e *MissingRecordError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("no %s record for %s", e.RecordType, e.Source)
	}
	return fmt.Sprintf("no %s record", e.RecordType)
}

// FieldResolutionError records one failed decoding step for a field.
// Record views collect these instead of returning them.
type FieldResolutionError struct {
	// Type is the record type, "Module.Name".
	Type string
	// Field is the field being resolved.
	Field string
	// Step names the decoding step that failed.
	Step string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *FieldResolutionError) Error() string {
	return fmt.Sprintf("resolve %s.%s (%s): %v", e.Type, e.Field, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *FieldResolutionError) Unwrap() error {
	return e.Err
}

// UnsupportedOperationError reports an operation the current access mode
// cannot perform, or an input it cannot locate.
type UnsupportedOperationError struct {
	// Op is the attempted operation, e.g. "seek".
	Op string
	// Mode is the access mode, e.g. "live".
	Mode string
	// Input is the offending argument, if any.
	Input any
	// Reason explains the failure.
	Reason string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	msg := fmt.Sprintf("%s unsupported in %s mode", e.Op, e.Mode)
	if e.Input != nil {
		msg = fmt.Sprintf("%s %v unsupported in %s mode", e.Op, e.Input, e.Mode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ConfigLoadError reports that no access form of a run could be loaded.
type ConfigLoadError struct {
	// Source is the data source string that failed.
	Source string
	// Attempts holds the error from each access form tried, in order.
	Attempts []error
}

// Error implements the error interface.
func (e *ConfigLoadError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("load %s: no accessible storage", e.Source)
	}
	parts := make([]string, len(e.Attempts))
	for i, err := range e.Attempts {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("load %s: %s", e.Source, strings.Join(parts, "; "))
}

// Unwrap returns every attempt error for errors.Is/As support.
func (e *ConfigLoadError) Unwrap() []error {
	return e.Attempts
}

// StoreError wraps a failure reported by the store.
type StoreError struct {
	// Op is the store operation, e.g. "open".
	Op string
	// Source is the data source string.
	Source string
	// Temporary marks failures worth retrying, such as a shared-memory
	// server that is not up yet.
	Temporary bool
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}
