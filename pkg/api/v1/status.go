// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatusFunc reports the current gateway status.
type StatusFunc func() GatewayStatus

// StatusRouter sets up the gateway status route.
func StatusRouter(status StatusFunc) http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, status())
	})
	return r
}
