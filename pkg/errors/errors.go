package errors

import (
	"errors"
)

type Code string

const (
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeRefreshFailed      Code = "refresh_failed"
	CodeSessionExpired     Code = "session_expired"
)

const (
	CodeUnknown            Code = "unknown"
	CodeStorageUnavailable Code = "storage_unavailable"
)

var ErrMissingAuthenticator = errors.New("sessionkit: authenticator is required")

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	if e.Message != "" {
		return e.Message
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsCode(err error, code Code) bool {
	var typed *Error
	if !errors.As(err, &typed) {
		return false
	}
	return typed.Code == code
}

// IsAuthentication reports whether err is a rejected login.
func IsAuthentication(err error) bool {
	return IsCode(err, CodeInvalidCredentials) || IsCode(err, CodeUnauthenticated)
}

// IsRefresh reports whether err is a failed token refresh. Refresh failures
// are fatal to the session and are never retried.
func IsRefresh(err error) bool {
	return IsCode(err, CodeRefreshFailed)
}

func IsStorage(err error) bool {
	return IsCode(err, CodeStorageUnavailable)
}
