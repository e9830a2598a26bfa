// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stacklok/toolhive-core/httperr"

	apierrors "github.com/stacklok/mcpgate/pkg/api/errors"
	"github.com/stacklok/mcpgate/pkg/lifecycle"
)

// DiscoveryRoutes defines the routes for the discovery flag.
type DiscoveryRoutes struct {
	manager lifecycle.Manager
}

// DiscoveryRouter creates a new router for the discovery flag.
func DiscoveryRouter(manager lifecycle.Manager) http.Handler {
	routes := DiscoveryRoutes{manager: manager}

	r := chi.NewRouter()
	r.Get("/", routes.getDiscovery)
	r.Put("/", apierrors.ErrorHandler(routes.setDiscovery))
	return r
}

// getDiscovery
//
//	@Summary		Get the discovery flag
//	@Tags			discovery
//	@Produce		json
//	@Success		200	{object}	DiscoveryResponse
//	@Router			/api/v1/discovery [get]
func (d *DiscoveryRoutes) getDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DiscoveryResponse{Enabled: d.manager.DiscoveryEnabled()})
}

// setDiscovery
//
//	@Summary		Turn the discovery endpoint on or off
//	@Tags			discovery
//	@Accept			json
//	@Produce		json
//	@Param			request	body		DiscoveryRequest	true	"Discovery flag"
//	@Success		200		{object}	DiscoveryResponse
//	@Failure		400		{string}	string	"Bad Request"
//	@Router			/api/v1/discovery [put]
func (d *DiscoveryRoutes) setDiscovery(w http.ResponseWriter, r *http.Request) error {
	var req DiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return httperr.WithCode(fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
	}
	if req.Enabled == nil {
		return httperr.WithCode(errors.New("enabled is required"), http.StatusBadRequest)
	}

	d.manager.SetDiscoveryEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, DiscoveryResponse{Enabled: *req.Enabled})
	return nil
}
