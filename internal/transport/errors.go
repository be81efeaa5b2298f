package transport

import (
	"errors"
	"fmt"
)

const (
	msgNetworkError  = "network error"
	msgRequestFailed = "request failed"
)

// RequestError is a failed call to the document service. Status is 0 when no
// response was received.
type RequestError struct {
	Status  int
	Message string
	Details map[string]any
	Err     error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// AuthError means the bearer token is missing, expired or rejected. The
// session has been cleared by the time it is returned.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// NotFoundError means the requested resource or artifact does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// ParseError means a success response carried a body that could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response from %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsNetworkFailure reports whether err is a transport failure with no
// response from the service.
func IsNetworkFailure(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Status == 0
}

func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
