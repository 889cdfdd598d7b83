package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
)

// Kind classifies a failure by the stage that produced it.
type Kind string

const (
	KindRetrieval     Kind = "retrieval"
	KindDecode        Kind = "decode"
	KindModelCall     Kind = "model_call"
	KindConfiguration Kind = "configuration"
)

// Sentinels for errors.Is matching against a Kind.
var (
	ErrRetrieval     = errors.New("retrieval error")
	ErrDecode        = errors.New("decode error")
	ErrModelCall     = errors.New("model call error")
	ErrConfiguration = errors.New("configuration error")
)

// Error carries the failing stage, the operation, and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinel so callers can test errors.Is(err, ErrDecode).
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRetrieval:
		return e.Kind == KindRetrieval
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrModelCall:
		return e.Kind == KindModelCall
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	}
	return false
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Retrieval wraps a network or transport failure fetching a document.
func Retrieval(op string, err error) error { return newError(KindRetrieval, op, err) }

// Decode wraps a failure turning document bytes into text.
func Decode(op string, err error) error { return newError(KindDecode, op, err) }

// ModelCall wraps a failure of the external extraction capability.
func ModelCall(op string, err error) error { return newError(KindModelCall, op, err) }

// Configuration wraps an invalid setting detected before any I/O.
func Configuration(op string, err error) error { return newError(KindConfiguration, op, err) }

// Configurationf builds a configuration error from a format string.
func Configurationf(op, format string, args ...any) error {
	return newError(KindConfiguration, op, fmt.Errorf(format, args...))
}

// Decodef builds a decode error from a format string.
func Decodef(op, format string, args ...any) error {
	return newError(KindDecode, op, fmt.Errorf(format, args...))
}

// KindOf returns the Kind of the outermost *Error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Describe renders a failure for the user: which stage failed, why, and
// what to check next.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Sprintf("cancelled: %v", err)
	}
	switch KindOf(err) {
	case KindRetrieval:
		return fmt.Sprintf("fetch failed: %v\nhint: check network connectivity and that the document location is reachable", err)
	case KindDecode:
		hint := "the document is malformed, unsupported, or contains no text"
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			hint = fmt.Sprintf("install %s and make sure it is on PATH", execErr.Name)
		}
		return fmt.Sprintf("document problem: %v\nhint: %s", err, hint)
	case KindModelCall:
		hint := "check that the model backend is running and reachable"
		var nerr net.Error
		if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
			hint = "the model backend did not answer in time; check that it is reachable (e.g. `ollama serve`)"
		}
		return fmt.Sprintf("extraction failed: %v\nhint: %s", err, hint)
	case KindConfiguration:
		return fmt.Sprintf("configuration problem: %v\nhint: fix the flags, environment, or task file and retry", err)
	}
	return fmt.Sprintf("error: %v", err)
}
