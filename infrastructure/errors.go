package infrastructure

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrMissingToken = errors.New("missing access token")
	ErrInvalidToken = errors.New("invalid access token")
)

// Error is the error type returned by the chat core. Code classifies the
// failure; Message is the caller-facing text.
type Error struct {
	Code    codes.Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// GRPCStatus lets status.Code and status.FromError classify wrapped errors.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// NotFound reports a missing session, message or participant.
func NotFound(format string, args ...any) error {
	return &Error{Code: codes.NotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument reports a rejected input. The operation had no side effect.
func InvalidArgument(format string, args ...any) error {
	return &Error{Code: codes.InvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports an operation that the current session state forbids.
func Conflict(format string, args ...any) error {
	return &Error{Code: codes.FailedPrecondition, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated reports a missing or invalid caller identity.
func Unauthenticated(err error) error {
	return &Error{Code: codes.Unauthenticated, Message: err.Error(), Err: err}
}

// StoreFailure wraps an error returned by a storage backend.
func StoreFailure(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return err
	}
	msg := fmt.Sprintf(format, args...)
	return &Error{Code: codes.Unavailable, Message: msg + ": " + err.Error(), Err: err}
}

// Code returns the classification of err, codes.OK for nil and
// codes.Unknown for errors that did not originate in the core.
func Code(err error) codes.Code {
	return status.Code(err)
}

// IsNotFound reports whether err is classified as NotFound.
func IsNotFound(err error) bool {
	return Code(err) == codes.NotFound
}
