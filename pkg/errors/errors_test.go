// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err:  NewTransportError("request timed out", errors.New("deadline exceeded")),
			want: "transport: request timed out: deadline exceeded",
		},
		{
			name: "error without cause",
			err:  NewNotFoundError("no server found with ID: x", nil),
			want: "not_found: no server found with ID: x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := NewOAuthError("refresh failed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NewNotFoundError("x", nil), IsNotFound},
		{"already active", NewAlreadyActiveError("x", nil), IsAlreadyActive},
		{"connection failed", NewConnectionFailedError("x", nil), IsConnectionFailed},
		{"transport", NewTransportError("x", nil), IsTransport},
		{"protocol", NewProtocolError("x", nil), IsProtocol},
		{"auth required", NewAuthRequiredError("x", nil), IsAuthRequired},
		{"oauth", NewOAuthError("x", nil), IsOAuth},
		{"dependency missing", NewDependencyMissingError("x", nil), IsDependencyMissing},
		{"validation", NewValidationError("x", nil), IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			wrapped := fmt.Errorf("connect backend: %w", tt.err)
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(wrapped))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestMessageOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "No command specified", MessageOf(NewConnectionFailedError("No command specified", nil)))
	assert.Equal(t, "spawn: boom", MessageOf(fmt.Errorf("wrap: %w", NewConnectionFailedError("spawn", errors.New("boom")))))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
	assert.Equal(t, "", MessageOf(nil))
}
