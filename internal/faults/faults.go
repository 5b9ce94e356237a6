// Package faults defines the error taxonomy shared by the acquisition pipeline,
// the transcoder and the delivery server.
package faults

import (
	"context"
	"errors"
	"fmt"
)

// Code is a stable, machine-readable failure category. Codes are persisted on
// failed jobs and returned verbatim to API callers.
type Code string

const (
	UnsupportedSource  Code = "UNSUPPORTED_SOURCE"
	ExtractionTimeout  Code = "EXTRACTION_TIMEOUT"
	NetworkError       Code = "NETWORK_ERROR"
	QuotaExceeded      Code = "QUOTA_EXCEEDED"
	UnsplittableFormat Code = "UNSPLITTABLE_FORMAT"
	TranscodeFailed    Code = "TRANSCODE_FAILED"
	DuplicateIdentity  Code = "DUPLICATE_IDENTITY"
	StorageWriteFailed Code = "STORAGE_WRITE_FAILED"
	Internal           Code = "INTERNAL"
)

// Retryable reports whether failures with this code are transient.
func (c Code) Retryable() bool {
	switch c {
	case NetworkError, ExtractionTimeout:
		return true
	default:
		return false
	}
}

// Error carries a taxonomy code, a human-readable summary and an optional cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on the code alone, e.g. errors.Is(err, faults.New(faults.QuotaExceeded, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Msg == "" && t.Err == nil
}

// New returns an Error with the given code and summary.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to err. A nil err yields nil.
func Wrap(code Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf returns the outermost taxonomy code in err's chain, or Internal.
// Deadline expiry is reported as NetworkError so that bare timeouts are retried.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkError
	}
	return Internal
}

// Retryable reports whether err is a transient failure worth another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return CodeOf(err).Retryable()
}

// Message returns the human-readable summary for err without the code prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		switch {
		case fe.Msg != "" && fe.Err != nil:
			return fe.Msg + ": " + fe.Err.Error()
		case fe.Msg != "":
			return fe.Msg
		case fe.Err != nil:
			return fe.Err.Error()
		}
		return string(fe.Code)
	}
	return err.Error()
}
