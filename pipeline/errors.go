package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. Each typed error below unwraps to
// one of them.
var (
	ErrParse         = errors.New("parse error")
	ErrComputation   = errors.New("computation error")
	ErrConfiguration = errors.New("configuration error")
)

// ParseError reports a value that could not be parsed under a stage's
// declared format. A failure inside a Union, Join or Compare sub-chain is
// reported against that Union, Join or Compare stage.
type ParseError struct {
	Stage  int    // zero-based stage index
	Kind   string // stage kind, e.g. "derive"
	Record int    // zero-based position of the record in the stage input
	Field  string
	Value  any
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("stage %d (%s): record %d: cannot parse field %q value %v", e.Stage, e.Kind, e.Record, e.Field, e.Value)
	if e.Format != "" {
		msg += fmt.Sprintf(" with format %q", e.Format)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns both the sentinel and the underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// ComputationError reports undefined arithmetic, such as division by zero
// or a month number outside 1..12.
type ComputationError struct {
	Stage  int
	Kind   string
	Record int
	Field  string
	Op     string
	Reason string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("stage %d (%s): record %d: %s on field %q: %s", e.Stage, e.Kind, e.Record, e.Op, e.Field, e.Reason)
}

func (e *ComputationError) Unwrap() error { return ErrComputation }

// ConfigurationError reports a stage that references something the pipeline
// does not recognize. It is returned by New before any records are read.
type ConfigurationError struct {
	Stage  int
	Kind   string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("stage %d (%s): %s", e.Stage, e.Kind, e.Reason)
	}
	return fmt.Sprintf("stage %d (%s): field %q: %s", e.Stage, e.Kind, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// fieldError is the stage-local form of a parse or computation failure.
// Stages return it from per-record helpers; the runner fills in the stage
// index and record position before applying the active policy.
type fieldError struct {
	parse  bool
	field  string
	value  any
	format string
	op     string
	reason string
	err    error
}

func (e *fieldError) Error() string {
	if e.parse {
		return fmt.Sprintf("cannot parse %q: %v", e.field, e.err)
	}
	return fmt.Sprintf("%s on %q: %s", e.op, e.field, e.reason)
}

func parseFailure(field string, value any, format string, err error) *fieldError {
	return &fieldError{parse: true, field: field, value: value, format: format, err: err}
}

func computeFailure(field, op, reason string) *fieldError {
	return &fieldError{field: field, op: op, reason: reason}
}

// configError builds a ConfigurationError without stage position; New fills
// it in.
func configError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
