// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the typed errors shared by the gateway components.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrNotFound is returned when a backend id is unknown
	ErrNotFound = "not_found"

	// ErrAlreadyActive is returned when connecting a backend that is connecting or connected
	ErrAlreadyActive = "already_active"

	// ErrConnectionFailed is returned when a backend cannot be started or reached
	ErrConnectionFailed = "connection_failed"

	// ErrTransport is returned for I/O failures, timeouts and closed streams
	ErrTransport = "transport"

	// ErrProtocol is returned for malformed envelopes and JSON-RPC error objects
	ErrProtocol = "protocol"

	// ErrAuthRequired is returned when a backend answers 401
	ErrAuthRequired = "auth_required"

	// ErrOAuth is returned for failures in discovery, registration, exchange or refresh
	ErrOAuth = "oauth"

	// ErrDependencyMissing is returned when a backend executable is not installed
	ErrDependencyMissing = "dependency_missing"

	// ErrValidation is returned for invalid input
	ErrValidation = "validation"
)

// Error represents a gateway error
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewAlreadyActiveError creates a new already active error
func NewAlreadyActiveError(message string, cause error) *Error {
	return NewError(ErrAlreadyActive, message, cause)
}

// NewConnectionFailedError creates a new connection failed error
func NewConnectionFailedError(message string, cause error) *Error {
	return NewError(ErrConnectionFailed, message, cause)
}

// NewTransportError creates a new transport error
func NewTransportError(message string, cause error) *Error {
	return NewError(ErrTransport, message, cause)
}

// NewProtocolError creates a new protocol error
func NewProtocolError(message string, cause error) *Error {
	return NewError(ErrProtocol, message, cause)
}

// NewAuthRequiredError creates a new auth required error
func NewAuthRequiredError(message string, cause error) *Error {
	return NewError(ErrAuthRequired, message, cause)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(message string, cause error) *Error {
	return NewError(ErrOAuth, message, cause)
}

// NewDependencyMissingError creates a new dependency missing error
func NewDependencyMissingError(message string, cause error) *Error {
	return NewError(ErrDependencyMissing, message, cause)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// TypeOf returns the type of the first *Error in err's chain, or "" if there is none.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// MessageOf returns the message of the first *Error in err's chain without
// its type prefix, falling back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s", e.Message, e.Cause)
		}
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func isType(err error, errorType string) bool {
	return TypeOf(err) == errorType
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrNotFound)
}

// IsAlreadyActive checks if the error is an already active error
func IsAlreadyActive(err error) bool {
	return isType(err, ErrAlreadyActive)
}

// IsConnectionFailed checks if the error is a connection failed error
func IsConnectionFailed(err error) bool {
	return isType(err, ErrConnectionFailed)
}

// IsTransport checks if the error is a transport error
func IsTransport(err error) bool {
	return isType(err, ErrTransport)
}

// IsProtocol checks if the error is a protocol error
func IsProtocol(err error) bool {
	return isType(err, ErrProtocol)
}

// IsAuthRequired checks if the error is an auth required error
func IsAuthRequired(err error) bool {
	return isType(err, ErrAuthRequired)
}

// IsOAuth checks if the error is an OAuth error
func IsOAuth(err error) bool {
	return isType(err, ErrOAuth)
}

// IsDependencyMissing checks if the error is a dependency missing error
func IsDependencyMissing(err error) bool {
	return isType(err, ErrDependencyMissing)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrValidation)
}
