// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/stacklok/mcpgate/pkg/api/v1"
	"github.com/stacklok/mcpgate/pkg/lifecycle"
)

// Deps are the components the admin API serves.
type Deps struct {
	Manager lifecycle.Manager
	Stats   v1.StatsReader
	Logs    v1.LogDrainer
	Status  v1.StatusFunc
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Router builds the admin API. The gateway mounts it under /api/v1.
func Router(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		headersMiddleware,
	)

	routers := map[string]http.Handler{
		"/servers":   v1.ServerRouter(deps.Manager, deps.Stats),
		"/discovery": v1.DiscoveryRouter(deps.Manager),
		"/logs":      v1.LogsRouter(deps.Logs),
		"/status":    v1.StatusRouter(deps.Status),
		"/version":   v1.VersionRouter(),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}
	return r
}
