package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies lookup and upstream failures.
type ErrorKind string

const (
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindNotFound        ErrorKind = "not_found"
	KindUnavailable     ErrorKind = "unavailable"
	KindParse           ErrorKind = "parse"
	KindRateLimited     ErrorKind = "rate_limited"
)

// Error is a classified failure. Err holds the upstream cause, if any.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
	ErrParse           = &Error{Kind: KindParse}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
)

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error of the given kind with a formatted cause.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels above work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether a caller may retry a failure of the given kind with backoff.
func Retryable(kind ErrorKind) bool {
	switch kind {
	case KindUnavailable, KindRateLimited:
		return true
	default:
		return false
	}
}
