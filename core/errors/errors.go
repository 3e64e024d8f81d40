// Package errors provides the error taxonomy shared by the standoff packages.
//
// Every failure is reported through a sentinel that callers match with Is,
// usually wrapped in a typed error that carries the offending offsets, id or
// name. Construction and wrapping go through github.com/cockroachdb/errors so
// wrapped errors keep a stack trace and optional hints.
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Sentinel errors for common cases
var (
	// ErrInvalidOffset indicates a span outside the text or with start > end
	ErrInvalidOffset = crdb.New("invalid offset")
	// ErrInvalidKey indicates an attribute name that is not a usable string key
	ErrInvalidKey = crdb.New("invalid key")
	// ErrUnknownID indicates an operation on an annotation id that is not present
	ErrUnknownID = crdb.New("unknown annotation id")
	// ErrUnknownKey indicates removal of an attribute that is not present
	ErrUnknownKey = crdb.New("unknown key")
	// ErrDuplicateName indicates a name collision (annotation sets, loggers)
	ErrDuplicateName = crdb.New("duplicate name")
	// ErrDuplicateID indicates an explicit annotation id that is already taken
	ErrDuplicateID = crdb.New("duplicate annotation id")
	// ErrUnsupportedValue indicates an attribute value outside the value variant
	ErrUnsupportedValue = crdb.New("unsupported value")
	// ErrUnknownCommand indicates a change record with an unrecognised command
	ErrUnknownCommand = crdb.New("unknown command")
	// ErrBaselineMismatch indicates a replay target that does not match the log's baseline
	ErrBaselineMismatch = crdb.New("baseline mismatch")
	// ErrInvalidInput indicates malformed input to a collaborator (query, bundle, XML)
	ErrInvalidInput = crdb.New("invalid input")
)

// OffsetError reports a span that violates 0 <= start <= end <= length.
type OffsetError struct {
	Start  int
	End    int
	Length int
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("invalid offsets [%d, %d) for text of length %d", e.Start, e.End, e.Length)
}

func (e *OffsetError) Unwrap() error {
	return ErrInvalidOffset
}

// UnknownIDError reports a missing annotation id within a named set.
type UnknownIDError struct {
	Set string // Name of the annotation set, may be empty for detached sets
	ID  int
}

func (e *UnknownIDError) Error() string {
	if e.Set != "" {
		return fmt.Sprintf("annotation %d not found in set %q", e.ID, e.Set)
	}
	return fmt.Sprintf("annotation %d not found", e.ID)
}

func (e *UnknownIDError) Unwrap() error {
	return ErrUnknownID
}

// KeyError reports a rejected or missing attribute name.
type KeyError struct {
	Name   string
	Reason string
	Err    error // ErrInvalidKey or ErrUnknownKey
}

func (e *KeyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("attribute %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("attribute %q: %v", e.Name, e.Err)
}

func (e *KeyError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidKey
}

// DuplicateError reports a name or id that already exists.
type DuplicateError struct {
	Kind string // e.g. "annotation set", "annotation id"
	Name string
	Err  error // ErrDuplicateName or ErrDuplicateID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.Name)
}

func (e *DuplicateError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrDuplicateName
}

// ValueError reports an attribute value outside the supported variant.
type ValueError struct {
	Path string // Dotted path to the offending value
	Type string // Go type of the offending value
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("unsupported value of type %s at %s", e.Type, e.Path)
}

func (e *ValueError) Unwrap() error {
	return ErrUnsupportedValue
}

// ReplayError reports the change record at which a replay stopped.
type ReplayError struct {
	Index   int
	Command string
	Err     error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay record %d (%s): %v", e.Index, e.Command, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// Helper functions for creating common errors

// NewOffset creates an OffsetError
func NewOffset(start, end, length int) *OffsetError {
	return &OffsetError{Start: start, End: end, Length: length}
}

// NewUnknownID creates an UnknownIDError
func NewUnknownID(set string, id int) *UnknownIDError {
	return &UnknownIDError{Set: set, ID: id}
}

// NewInvalidKey creates a KeyError wrapping ErrInvalidKey
func NewInvalidKey(name, reason string) *KeyError {
	return &KeyError{Name: name, Reason: reason, Err: ErrInvalidKey}
}

// NewUnknownKey creates a KeyError wrapping ErrUnknownKey
func NewUnknownKey(name string) *KeyError {
	return &KeyError{Name: name, Err: ErrUnknownKey}
}

// NewDuplicateName creates a DuplicateError wrapping ErrDuplicateName
func NewDuplicateName(kind, name string) *DuplicateError {
	return &DuplicateError{Kind: kind, Name: name, Err: ErrDuplicateName}
}

// NewDuplicateID creates a DuplicateError wrapping ErrDuplicateID
func NewDuplicateID(set string, id int) *DuplicateError {
	return &DuplicateError{Kind: "annotation id", Name: fmt.Sprintf("%s#%d", set, id), Err: ErrDuplicateID}
}

// NewValue creates a ValueError
func NewValue(path string, v any) *ValueError {
	return &ValueError{Path: path, Type: fmt.Sprintf("%T", v)}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return crdb.Wrap(err, message)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return crdb.Wrapf(err, format, args...)
}

// WithHint attaches a user-facing hint to err.
func WithHint(err error, hint string) error {
	return crdb.WithHint(err, hint)
}

// New creates an error with a stack trace.
func New(msg string) error {
	return crdb.New(msg)
}

// Newf creates a formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return crdb.Newf(format, args...)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return crdb.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return crdb.As(err, target)
}
