// Package apperr provides coded application errors for the session subsystem.
// Every failure a session can hit maps onto one of the codes below so callers
// can decide between local recovery and surfacing a message to the admin UI.
package apperr

import (
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code classifies a session failure.
type Code string

const (
	// DeviceUnavailable means camera or microphone acquisition exhausted all candidates.
	DeviceUnavailable Code = "device_unavailable"
	// RecognitionUnsupported means no speech-to-text capability exists on this platform.
	RecognitionUnsupported Code = "recognition_unsupported"
	// RecognitionError is a speech recognition failure; transient unless permission-denied.
	RecognitionError Code = "recognition_error"
	// SubmissionFailed means the scoring endpoint rejected or never received the session.
	SubmissionFailed Code = "submission_failed"
	// NoQuestions means the derived question sequence for the active mode is empty.
	NoQuestions Code = "no_questions"
	// InvalidState means the requested operation does not fit the current session state.
	InvalidState Code = "invalid_state"
	// Internal is everything else.
	Internal Code = "internal"
)

// Error is the base error type with a structured code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// CodeOf extracts the code from an error, or Internal if it carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsPermissionDenied reports whether err is a permission-denial class failure.
// Those are terminal for speech recognition: auto-restart must not fire.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.PermissionDenied, codes.Unauthenticated:
			return true
		}
	}
	return false
}
