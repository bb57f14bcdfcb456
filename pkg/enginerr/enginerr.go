// Package enginerr defines the engine's error taxonomy.
//
// Every component returns one of these kinds instead of an ad-hoc error so
// that HTTP handlers and the dispatcher can map failures to a stable
// semantic without type-switching on internal error values.
package enginerr

import (
	"errors"
	"fmt"
)

// Kind is the semantic category of an engine error.
type Kind string

const (
	KindBadRequest  Kind = "bad_request"
	KindUnsupported Kind = "unsupported"
	KindUpstream    Kind = "upstream"
	KindTimeout     Kind = "timeout"
	KindToolDenied  Kind = "tool_denied"
	KindToolConfirm Kind = "tool_confirm"
	KindInternal    Kind = "internal"
)

// Error wraps an underlying cause with a semantic Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Message: msg, Err: err}
}

func BadRequest(msg string, err error) *Error  { return new_(KindBadRequest, msg, err) }
func Unsupported(msg string, err error) *Error { return new_(KindUnsupported, msg, err) }
func Upstream(msg string, err error) *Error    { return new_(KindUpstream, msg, err) }
func Timeout(msg string, err error) *Error     { return new_(KindTimeout, msg, err) }
func ToolDenied(msg string, err error) *Error  { return new_(KindToolDenied, msg, err) }
func ToolConfirm(msg string, err error) *Error { return new_(KindToolConfirm, msg, err) }
func Internal(msg string, err error) *Error    { return new_(KindInternal, msg, err) }

// KindOf extracts the Kind of err, defaulting to KindInternal if err does
// not wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code the HTTP surface should return.
func HTTPStatus(k Kind) int {
	switch k {
	case KindBadRequest, KindUnsupported:
		return 400
	case KindTimeout:
		return 504
	case KindUpstream:
		return 502
	default:
		return 500
	}
}
