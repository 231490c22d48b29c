package connector

import (
	"errors"
	"fmt"
)

// Kind classifies the failure recorded on a Connector.
type Kind int

const (
	// KindTransport is a network or HTTP failure.
	KindTransport Kind = iota + 1
	// KindNotAvailable means neither the cache nor the server produced a value,
	// or a chain step's payload lacked the fields the next step needs.
	KindNotAvailable
	// KindMalformed means a payload was present but could not be decoded.
	KindMalformed
	// KindInvalidArgument means the operation input was rejected before any call was made.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindNotAvailable:
		return "not_available"
	case KindMalformed:
		return "malformed"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error is the single error a Connector records about itself.
type Error struct {
	Kind Kind
	// StatusCode is the HTTP status for transport failures, zero otherwise.
	StatusCode int
	Err        error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrTransport       = &Error{Kind: KindTransport}
	ErrNotAvailable    = &Error{Kind: KindNotAvailable}
	ErrMalformed       = &Error{Kind: KindMalformed}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
)

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewTransportError records a failed request.
func NewTransportError(statusCode int, cause error) *Error {
	return &Error{Kind: KindTransport, StatusCode: statusCode, Err: cause}
}

// NewNotAvailableError wraps the reason nothing could be produced.
func NewNotAvailableError(cause error) *Error {
	return &Error{Kind: KindNotAvailable, Err: cause}
}

// NewMalformedError wraps a decoding failure.
func NewMalformedError(cause error) *Error {
	return &Error{Kind: KindMalformed, Err: cause}
}

// NewInvalidArgumentError wraps an input validation failure.
func NewInvalidArgumentError(cause error) *Error {
	return &Error{Kind: KindInvalidArgument, Err: cause}
}

// KindOf returns the Kind of err, or zero when err carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
