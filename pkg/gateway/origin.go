// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"net/http"
	"net/url"

	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/networking"
)

// allowedOriginSchemes are non-web origins sent by editor webviews and local pages.
var allowedOriginSchemes = map[string]bool{
	"vscode-webview": true,
	"vscode-file":    true,
	"file":           true,
}

// originAllowed accepts a missing origin, loopback web origins and editor schemes.
func originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if allowedOriginSchemes[u.Scheme] {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return networking.IsLocalhost(u.Host)
}

// checkOrigin rejects cross-site requests from browsers to defend against DNS rebinding.
func checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !originAllowed(origin) {
			logger.Warnw("rejected request from disallowed origin", "origin", origin, "path", r.URL.Path)
			http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
