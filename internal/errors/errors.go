// Package errors defines the failure kinds reported to debugging front ends.
// Every front-end operation fails with exactly one kind, and every kind carries
// a stable numeric code that ends up in the front end's error response.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// FailureKind is the closed set of front-end visible failures.
type FailureKind int

const (
	KindInternal FailureKind = iota
	KindInitialization
	KindLaunch
	KindBreakpointSet
	KindLineVerification
	KindStackFetch
	KindThreadsFetch
	KindScopeCleanup
	KindVariableFetch
	KindSetVariable
	KindEvaluate
	KindContinue
	KindNext
	KindStepIn
	KindStepOut
	KindPause
	KindDisconnect
	KindUnsupported
	KindSessionNotFound
	KindSessionLimit
	KindInvalidArgument
)

var kindInfo = map[FailureKind]struct {
	code int
	name string
}{
	KindVariableFetch:    {11, "variable fetch failed"},
	KindBreakpointSet:    {12, "breakpoint set failed"},
	KindStackFetch:       {13, "stack fetch failed"},
	KindContinue:         {14, "continue failed"},
	KindNext:             {15, "next failed"},
	KindStepIn:           {16, "step in failed"},
	KindStepOut:          {17, "step out failed"},
	KindScopeCleanup:     {18, "scope cleanup failed"},
	KindPause:            {19, "pause failed"},
	KindLineVerification: {20, "breakpoint line verification failed"},
	KindSetVariable:      {21, "set variable failed"},
	KindEvaluate:         {22, "evaluate failed"},
	KindThreadsFetch:     {23, "threads fetch failed"},
	KindDisconnect:       {24, "disconnect failed"},
	KindLaunch:           {100, "launch failed"},
	KindInitialization:   {101, "initialization failed"},
	KindSessionNotFound:  {200, "session not found"},
	KindSessionLimit:     {201, "session limit reached"},
	KindInvalidArgument:  {202, "invalid argument"},
	KindUnsupported:      {1014, "unsupported request"},
	KindInternal:         {1104, "internal error"},
}

// Code returns the numeric code sent to front ends.
func (k FailureKind) Code() int {
	if info, ok := kindInfo[k]; ok {
		return info.code
	}
	return kindInfo[KindInternal].code
}

// String returns a short description of the failure.
func (k FailureKind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return kindInfo[KindInternal].name
}

// DebugError is a failed front-end operation.
type DebugError struct {
	// Kind identifies the operation that failed
	Kind FailureKind `json:"-"`

	// Message describes what went wrong, usually the backend's own error text
	Message string `json:"message"`

	// Hint suggests how to recover, for front ends that show it
	Hint string `json:"hint,omitempty"`

	// Details contains additional context such as the offending value
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}
	return sb.String()
}

// Code returns the numeric code of the error's kind.
func (e *DebugError) Code() int {
	return e.Kind.Code()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithHint sets the recovery hint
func (e *DebugError) WithHint(hint string) *DebugError {
	e.Hint = hint
	return e
}

// New creates an error of the given kind with a formatted message.
func New(kind FailureKind, format string, args ...interface{}) *DebugError {
	return &DebugError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a failure kind to err. The message is err's text so that the
// backend's own wording reaches the front end unchanged.
func Wrap(kind FailureKind, err error) *DebugError {
	if err == nil {
		return nil
	}
	return &DebugError{Kind: kind, Message: err.Error(), Cause: err}
}

// --- Session errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Kind:    KindSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use gdb_list_sessions to see active sessions, or gdb_launch to create a new one.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Kind:    KindSessionLimit,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use gdb_disconnect to end an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// --- Parameter errors ---

// MissingParameter creates an error for a required parameter that was not supplied
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Kind:    KindInvalidArgument,
		Message: fmt.Sprintf("missing required parameter '%s'", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidJSON creates an error for a parameter that should hold JSON but doesn't
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Kind:    KindInvalidArgument,
		Message: fmt.Sprintf("parameter '%s' is not valid JSON: %v", paramName, err),
		Hint:    fmt.Sprintf("Expected format: %s", example),
		Cause:   err,
	}
}

// FromError returns err as a DebugError, wrapping anything else as internal.
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return Wrap(KindInternal, err)
}

// KindOf returns the failure kind carried by err, or KindInternal.
func KindOf(err error) FailureKind {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
