// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors provides HTTP error handling utilities for the admin API.
package errors

import (
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error.
// Handlers return errors instead of writing error responses themselves.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts returned errors
// into HTTP responses.
//
//   - A nil error means the handler already wrote the response.
//   - Gateway errors get the status of their type and their message.
//   - Other 5xx errors are logged and answered with a generic message.
//   - Other 4xx errors return the error message to the client.
//
// Usage:
//
//	r.Get("/{id}", apierrors.ErrorHandler(routes.getServer))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := Code(err)
		if mcperrors.TypeOf(err) != "" {
			if code >= http.StatusInternalServerError {
				logger.Warnw("admin request failed", "path", r.URL.Path, "error", err)
			}
			http.Error(w, mcperrors.MessageOf(err), code)
			return
		}

		if code >= http.StatusInternalServerError {
			logger.Errorf("Internal server error: %v", err)
			http.Error(w, http.StatusText(code), code)
			return
		}

		http.Error(w, err.Error(), code)
	}
}

// Code returns the HTTP status for err. Gateway error types map to fixed
// statuses; anything else falls back to the code attached with httperr.
func Code(err error) int {
	switch mcperrors.TypeOf(err) {
	case mcperrors.ErrNotFound:
		return http.StatusNotFound
	case mcperrors.ErrAlreadyActive:
		return http.StatusConflict
	case mcperrors.ErrValidation:
		return http.StatusBadRequest
	case mcperrors.ErrAuthRequired:
		return http.StatusUnauthorized
	case mcperrors.ErrDependencyMissing:
		return http.StatusFailedDependency
	case mcperrors.ErrConnectionFailed, mcperrors.ErrTransport, mcperrors.ErrProtocol, mcperrors.ErrOAuth:
		return http.StatusBadGateway
	}
	return httperr.Code(err)
}
