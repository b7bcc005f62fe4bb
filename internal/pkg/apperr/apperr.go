package apperr

import (
	"errors"
	"fmt"
)

// Error codes returned to clients and matched with errors.Is via Code
// sentinels below.
const (
	CodeNotFound           = "not_found"
	CodeAlreadyExists      = "already_exists"
	CodeInvalidArgument    = "invalid_argument"
	CodeDurabilityDegraded = "durability_degraded"
	CodeTransportFailure   = "transport_failure"
)

type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, target) match any *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func New(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, fmt.Errorf(format, args...))
}

func AlreadyExists(format string, args ...interface{}) *Error {
	return New(CodeAlreadyExists, fmt.Errorf(format, args...))
}

func InvalidArgument(format string, args ...interface{}) *Error {
	return New(CodeInvalidArgument, fmt.Errorf(format, args...))
}

// CodeOf extracts the wire code for err, defaulting to an internal code for
// anything that is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}

// MessageOf extracts the human-readable cause without the code prefix.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func IsNotFound(err error) bool        { return CodeOf(err) == CodeNotFound }
func IsAlreadyExists(err error) bool   { return CodeOf(err) == CodeAlreadyExists }
func IsInvalidArgument(err error) bool { return CodeOf(err) == CodeInvalidArgument }
