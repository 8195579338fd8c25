// Package errors defines transport error types shared by the HTTP clients and
// servers in the adapter packages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ConnectionError is a failure to reach a remote endpoint, or a 5xx reply.
// It is the only adapter error worth retrying.
type ConnectionError struct {
	Message string
	Cause   error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection error: %s", e.Message)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) *ConnectionError {
	return &ConnectionError{Message: message, Cause: cause}
}

// ProtocolError is an error object returned by a remote API, or a reply that
// could not be decoded.
type ProtocolError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *ProtocolError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("protocol error [%s]: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("protocol error [%s]: %s", e.Code, e.Message)
}

// NewProtocolError creates a new protocol error.
func NewProtocolError(code, message string, details map[string]interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Message: message, Details: details}
}

// InvalidMessageError is a malformed request received by one of our servers.
type InvalidMessageError struct {
	Message string
	Details map[string]interface{}
}

func (e *InvalidMessageError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("invalid message: %s (details: %v)", e.Message, e.Details)
	}
	return fmt.Sprintf("invalid message: %s", e.Message)
}

// NewInvalidMessageError creates a new invalid message error.
func NewInvalidMessageError(message string, details map[string]interface{}) *InvalidMessageError {
	return &InvalidMessageError{Message: message, Details: details}
}

// IsRetryable reports whether err is a ConnectionError.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	return stderrors.As(err, &connErr)
}
