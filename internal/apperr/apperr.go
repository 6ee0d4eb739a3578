// Package apperr classifies pipeline failures and maps them to HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindExternalAuth     Kind = "external_auth_required"
	KindExternalNotFound Kind = "external_not_found"
	KindExternalGeneric  Kind = "external_tool"
	KindIntegrity        Kind = "integrity"
	KindLLMCall          Kind = "llm_call"
	KindLLMParse         Kind = "llm_parse"
	KindGenerationParse  Kind = "generation_parse"
	KindPersistence      Kind = "persistence"
	KindInternal         Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindInvalidInput:     http.StatusBadRequest,
	KindNotFound:         http.StatusNotFound,
	KindExternalAuth:     http.StatusForbidden,
	KindExternalNotFound: http.StatusNotFound,
	KindExternalGeneric:  http.StatusInternalServerError,
	KindIntegrity:        http.StatusInternalServerError,
	KindLLMCall:          http.StatusBadGateway,
	KindLLMParse:         http.StatusBadGateway,
	KindGenerationParse:  http.StatusBadGateway,
	KindPersistence:      http.StatusInternalServerError,
	KindInternal:         http.StatusInternalServerError,
}

// Error is a classified failure. Message is safe to show to API callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status associated with the error kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Integrity(format string, args ...any) *Error {
	return New(KindIntegrity, fmt.Sprintf(format, args...))
}

func LLMCall(msg string, err error) *Error { return Wrap(KindLLMCall, msg, err) }

func LLMParse(msg string, err error) *Error { return Wrap(KindLLMParse, msg, err) }

func GenerationParse(msg string, err error) *Error { return Wrap(KindGenerationParse, msg, err) }

func Persistence(msg string, err error) *Error { return Wrap(KindPersistence, msg, err) }

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// StatusOf maps any error to an HTTP status; unclassified errors are 500.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status()
	}
	return http.StatusInternalServerError
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
