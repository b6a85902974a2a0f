package vox

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	// CodeIO marks failure to open or read a voxel dataset.
	CodeIO Code = "IO_ERROR"

	// CodeFormat marks a malformed or inconsistent voxel dataset.
	CodeFormat Code = "FORMAT_ERROR"

	// CodeInvalidFactor marks a coarsen factor less than one.
	CodeInvalidFactor Code = "INVALID_FACTOR"
)

// Sentinels usable with errors.Is; any *Error with the same Code matches.
var (
	ErrIO            = &Error{Code: CodeIO, Message: "i/o failure"}
	ErrFormat        = &Error{Code: CodeFormat, Message: "bad voxel format"}
	ErrInvalidFactor = &Error{Code: CodeInvalidFactor, Message: "invalid coarsen factor"}
)

// Error is a categorized error with optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// NewError returns an Error with a formatted message.
func NewError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError returns an Error that wraps cause.  A nil cause returns nil.
func WrapError(code Code, cause error, format string, args ...interface{}) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsCode returns true if err or anything it wraps is an *Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// ErrorCode returns the Code of the outermost *Error in err's chain or "" if none.
func ErrorCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
