// Package autherr defines the error kinds shared by the credential and token
// packages. Library failures are wrapped into one of these kinds so callers
// only ever branch on autherr sentinels, never on argon2/jwt/otp internals.
package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindExpired
	KindInvalidToken
	KindMFAMaxAttempts
	KindConfiguration
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExpired:
		return "expired"
	case KindInvalidToken:
		return "invalid_token"
	case KindMFAMaxAttempts:
		return "mfa_max_attempts"
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the operation that failed (e.g.
// "cryptox.Verify"), Msg is a short description and Err the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var s string
	if e.Op != "" {
		s = e.Op + ": "
	}
	s += e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the bare sentinel for e's kind, so that
// errors.Is(err, autherr.ErrExpired) matches any expired error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrExpired        = &Error{Kind: KindExpired}
	ErrInvalidToken   = &Error{Kind: KindInvalidToken}
	ErrMFAMaxAttempts = &Error{Kind: KindMFAMaxAttempts}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrAuthentication = &Error{Kind: KindAuthentication}
)

// New returns an Error of the given kind.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf is New with a formatted message.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
