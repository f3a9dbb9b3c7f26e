// Package auraerr defines the error taxonomy shared across the Mission
// Orchestrator: a closed set of Kinds plus a wrapping Error type so callers
// can errors.Is/errors.As across package boundaries instead of sniffing
// strings. The one exception is the LLM Gateway's "Error: ..." string
// contract, mandated because it crosses the external service's HTTP/ndjson
// boundary as plain text (see internal/llmgateway).
package auraerr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy's closed set of error categories.
type Kind string

const (
	// KindConfig covers a missing role assignment, missing credential, or
	// missing required environment variable. Surfaced as system_log; the
	// mission aborts.
	KindConfig Kind = "config"

	// KindGateway covers a non-2xx response or malformed stream from the
	// external LLM service.
	KindGateway Kind = "gateway"

	// KindParse covers LLM output that is not valid JSON in a context
	// that requires JSON.
	KindParse Kind = "parse"

	// KindToolNotFound covers a tool name absent from the catalog.
	KindToolNotFound Kind = "tool_not_found"

	// KindPathEscape covers a tool argument that resolves outside the
	// project root.
	KindPathEscape Kind = "path_escape"

	// KindToolFailure covers a tool that ran but whose result classifies
	// as FAILURE per the Tool Runner's rules.
	KindToolFailure Kind = "tool_failure"

	// KindCancelled covers a mission terminated by cancellation.
	KindCancelled Kind = "cancelled"

	// KindWorkspace covers project/workspace errors surfaced at the API
	// boundary; never returned from inside the mission loop.
	KindWorkspace Kind = "workspace"
)

// Error wraps a Kind with the underlying cause and an optional
// human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause.Error())
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error that wraps cause under the given kind.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Cause: cause, Message: message}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
