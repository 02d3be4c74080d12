package errors

import (
	"errors"
	"maps"
)

// Kind classifies an error so that the sync runner and the CLI can decide
// how to react to a failure without inspecting messages.
type Kind string

// All error kinds.
const (
	// KindConfig is a missing or invalid configuration value, detected
	// before any side effect.
	KindConfig Kind = "config"
	// KindNetwork is a transport-level failure (DNS, connect, timeout)
	// talking to the IP lookup service or the firewall provider.
	KindNetwork Kind = "network"
	// KindAPI is a non-2xx or malformed response from the firewall provider.
	KindAPI Kind = "api"
	// KindIO is a local filesystem failure (state file, history DB).
	KindIO Kind = "io"
)

// StructuredError enhances an error with a kind, structured metadata and a
// cause, which can be rendered as fields by slog.
type StructuredError struct {
	err      error
	kind     Kind
	metadata map[string]any
	cause    error
}

// Error implements the error interface.
func (e StructuredError) Error() string {
	return e.err.Error()
}

// Unwrap allows errors.Is and errors.As to work.
func (e StructuredError) Unwrap() []error {
	var errs []error
	if e.err != nil {
		errs = append(errs, e.err)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Cause returns the cause error of this error.
func (e StructuredError) Cause() error {
	return e.cause
}

// Kind returns the error classification, or an empty Kind if none was set.
func (e StructuredError) Kind() Kind {
	return e.kind
}

// Metadata returns a copy of the metadata map.
func (e StructuredError) Metadata() map[string]any {
	if e.metadata == nil {
		return nil
	}
	result := make(map[string]any, len(e.metadata))
	maps.Copy(result, e.metadata)
	return result
}

// New creates a new StructuredError of the given kind from a message string
// with optional metadata fields.
func New(kind Kind, msg string, fields ...any) *StructuredError {
	return &StructuredError{
		err:      errors.New(msg),
		kind:     kind,
		metadata: fieldMap(fields),
	}
}

// Wrap creates a new StructuredError of the given kind with a cause and
// optional metadata fields.
func Wrap(kind Kind, msg string, cause error, fields ...any) *StructuredError {
	return &StructuredError{
		err:      errors.New(msg),
		kind:     kind,
		metadata: fieldMap(fields),
		cause:    cause,
	}
}

// With adds metadata to an error, preserving its kind and cause if it is
// already a StructuredError.
func With(err error, fields ...any) *StructuredError {
	metadata := fieldMap(fields)

	var se *StructuredError
	if errors.As(err, &se) {
		combined := make(map[string]any, len(se.metadata)+len(metadata))
		maps.Copy(combined, se.metadata)
		maps.Copy(combined, metadata) // newer metadata overwrites older
		return &StructuredError{
			err:      se.err,
			kind:     se.kind,
			metadata: combined,
			cause:    se.cause,
		}
	}

	return &StructuredError{err: err, metadata: metadata}
}

func fieldMap(fields []any) map[string]any {
	if len(fields)%2 != 0 {
		panic("an even number of fields is required")
	}

	metadata := make(map[string]any, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			panic("keys must be strings")
		}
		metadata[key] = fields[i+1]
	}

	return metadata
}
