// Package ccoserr defines the error taxonomy shared by every CCOS core
// component: a closed set of error kinds and a structured error type that
// carries the capability id and, where useful, remediation suggestions.
package ccoserr

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy of error kinds recognised by the CCOS core.
type Kind string

const (
	UnknownCapability Kind = "UnknownCapability"
	AccessDenied      Kind = "AccessDenied"
	SchemaViolation   Kind = "SchemaViolation"
	ResourceViolation Kind = "ResourceViolation"
	ExecutorFailure   Kind = "ExecutorFailure"
	ExecutionTimeout  Kind = "ExecutionTimeout"
	Cancelled         Kind = "Cancelled"
	BreakingChange    Kind = "BreakingChange"
	InternalInvariant Kind = "InternalInvariant"
	ParseFailure      Kind = "ParseFailure"
)

// Sentinel errors for errors.Is() comparisons, mirroring the teacher's
// core.Err* sentinel set.
var (
	ErrUnknownCapability = errors.New("unknown capability")
	ErrAccessDenied      = errors.New("access denied")
	ErrSchemaViolation   = errors.New("schema violation")
	ErrResourceViolation = errors.New("resource violation")
	ErrExecutorFailure   = errors.New("executor failure")
	ErrExecutionTimeout  = errors.New("execution timeout")
	ErrCancelled         = errors.New("cancelled")
	ErrBreakingChange    = errors.New("breaking change")
	ErrInternalInvariant = errors.New("internal invariant violated")
	ErrParseFailure      = errors.New("parse failure")
)

var sentinelByKind = map[Kind]error{
	UnknownCapability: ErrUnknownCapability,
	AccessDenied:      ErrAccessDenied,
	SchemaViolation:   ErrSchemaViolation,
	ResourceViolation: ErrResourceViolation,
	ExecutorFailure:   ErrExecutorFailure,
	ExecutionTimeout:  ErrExecutionTimeout,
	Cancelled:         ErrCancelled,
	BreakingChange:    ErrBreakingChange,
	InternalInvariant: ErrInternalInvariant,
	ParseFailure:      ErrParseFailure,
}

// Error is the structured error surfaced by every CCOS operation. It always
// carries a human-readable message and, where relevant, the capability id
// involved and a list of remediation suggestions (spec.md §7).
type Error struct {
	Kind          Kind
	CapabilityID  string
	Message       string
	Suggestions   []string
	Mismatches    []PathMismatch // SchemaViolation payload
	Breakages     []string       // BreakingChange payload
	ProviderKind  string         // ExecutorFailure payload
	Duration      int64          // ExecutorFailure / ExecutionTimeout: elapsed ms
	Err           error
}

// PathMismatch is one path-annotated schema validation failure.
type PathMismatch struct {
	Path     string
	Expected string
	Observed string
	Reason   string
}

func (m PathMismatch) String() string {
	return fmt.Sprintf("%s: expected %s, got %s (%s)", m.Path, m.Expected, m.Observed, m.Reason)
}

func (e *Error) Error() string {
	if e.CapabilityID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.CapabilityID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the sentinel for the error's kind so errors.Is(err,
// ccoserr.ErrAccessDenied) works regardless of the wrapping struct.
func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinelByKind[e.Kind]
}

// New builds a structured error for the given kind.
func New(kind Kind, capabilityID, message string) *Error {
	return &Error{Kind: kind, CapabilityID: capabilityID, Message: message}
}

// Newf builds a structured error with a formatted message.
func Newf(kind Kind, capabilityID, format string, args ...interface{}) *Error {
	return New(kind, capabilityID, fmt.Sprintf(format, args...))
}

// WithSuggestions returns a copy of e with suggestions attached.
func (e *Error) WithSuggestions(s ...string) *Error {
	c := *e
	c.Suggestions = append(append([]string{}, e.Suggestions...), s...)
	return &c
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
