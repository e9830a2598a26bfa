// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stacklok/toolhive-core/httperr"

	apierrors "github.com/stacklok/mcpgate/pkg/api/errors"
	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/lifecycle"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/stats"
)

// StatsReader is the statistics side of the server routes.
type StatsReader interface {
	Get(serverID string) *stats.ServerStats
	Reset(ctx context.Context, serverID string) error
}

// ServerRoutes defines the routes for backend management.
type ServerRoutes struct {
	manager lifecycle.Manager
	stats   StatsReader
}

// ServerRouter creates a new router for backend management.
func ServerRouter(manager lifecycle.Manager, statsReader StatsReader) http.Handler {
	routes := ServerRoutes{
		manager: manager,
		stats:   statsReader,
	}

	r := chi.NewRouter()
	r.Get("/", apierrors.ErrorHandler(routes.listServers))
	r.Post("/", apierrors.ErrorHandler(routes.createServer))
	r.Get("/{id}", apierrors.ErrorHandler(routes.getServer))
	r.Delete("/{id}", apierrors.ErrorHandler(routes.deleteServer))
	r.Post("/{id}/connect", apierrors.ErrorHandler(routes.connectServer))
	r.Post("/{id}/disconnect", apierrors.ErrorHandler(routes.disconnectServer))
	r.Post("/{id}/authorize", apierrors.ErrorHandler(routes.authorizeServer))
	r.Delete("/{id}/oauth", apierrors.ErrorHandler(routes.revokeServerAuth))
	r.Get("/{id}/tools", apierrors.ErrorHandler(routes.listServerTools))
	r.Get("/{id}/stats", apierrors.ErrorHandler(routes.getServerStats))
	r.Delete("/{id}/stats", apierrors.ErrorHandler(routes.resetServerStats))
	return r
}

// listServers
//
//	@Summary		List backends
//	@Description	List every configured backend with its status
//	@Tags			servers
//	@Produce		json
//	@Success		200	{object}	ServerListResponse
//	@Router			/api/v1/servers [get]
func (s *ServerRoutes) listServers(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, ServerListResponse{Servers: s.manager.List()})
	return nil
}

// createServer
//
//	@Summary		Add a backend
//	@Tags			servers
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateServerRequest	true	"Backend definition"
//	@Success		201		{object}	config.BackendConfig
//	@Failure		400		{string}	string	"Bad Request"
//	@Router			/api/v1/servers [post]
func (s *ServerRoutes) createServer(w http.ResponseWriter, r *http.Request) error {
	var req CreateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return httperr.WithCode(fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
	}

	backend, err := s.manager.Add(r.Context(), req.toBackend())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, backend)
	return nil
}

// getServer
//
//	@Summary		Get a backend
//	@Tags			servers
//	@Produce		json
//	@Param			id	path		string	true	"Backend id"
//	@Success		200	{object}	state.BackendView
//	@Failure		404	{string}	string	"Not Found"
//	@Router			/api/v1/servers/{id} [get]
func (s *ServerRoutes) getServer(w http.ResponseWriter, r *http.Request) error {
	view, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

// deleteServer
//
//	@Summary		Remove a backend
//	@Description	Disconnect the backend if needed, then delete it
//	@Tags			servers
//	@Param			id	path		string	true	"Backend id"
//	@Success		204	{string}	string	"No Content"
//	@Failure		404	{string}	string	"Not Found"
//	@Router			/api/v1/servers/{id} [delete]
func (s *ServerRoutes) deleteServer(w http.ResponseWriter, r *http.Request) error {
	if err := s.manager.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// connectServer
//
//	@Summary		Connect a backend
//	@Tags			servers
//	@Produce		json
//	@Param			id	path		string	true	"Backend id"
//	@Success		200	{object}	state.BackendView
//	@Failure		401	{string}	string	"Authentication required"
//	@Failure		404	{string}	string	"Not Found"
//	@Failure		409	{string}	string	"Already connecting or connected"
//	@Router			/api/v1/servers/{id}/connect [post]
func (s *ServerRoutes) connectServer(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.manager.Connect(r.Context(), id); err != nil {
		return err
	}
	return s.writeView(w, id)
}

// disconnectServer
//
//	@Summary		Disconnect a backend
//	@Tags			servers
//	@Produce		json
//	@Param			id	path		string	true	"Backend id"
//	@Success		200	{object}	state.BackendView
//	@Failure		404	{string}	string	"Not Found"
//	@Router			/api/v1/servers/{id}/disconnect [post]
func (s *ServerRoutes) disconnectServer(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.manager.Disconnect(r.Context(), id); err != nil {
		return err
	}
	return s.writeView(w, id)
}

// authorizeServer
//
//	@Summary		Sign in to a backend
//	@Description	Run the OAuth flow for an HTTP backend, then reconnect it
//	@Tags			servers
//	@Produce		json
//	@Param			id	path		string	true	"Backend id"
//	@Success		200	{object}	state.BackendView
//	@Failure		400	{string}	string	"Not an HTTP backend"
//	@Failure		502	{string}	string	"OAuth failure"
//	@Router			/api/v1/servers/{id}/authorize [post]
func (s *ServerRoutes) authorizeServer(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.manager.Authorize(r.Context(), id); err != nil {
		return err
	}
	return s.writeView(w, id)
}

// revokeServerAuth
//
//	@Summary		Revoke stored tokens
//	@Tags			servers
//	@Param			id	path		string	true	"Backend id"
//	@Success		204	{string}	string	"No Content"
//	@Router			/api/v1/servers/{id}/oauth [delete]
func (s *ServerRoutes) revokeServerAuth(w http.ResponseWriter, r *http.Request) error {
	if err := s.manager.RevokeAuth(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// listServerTools
//
//	@Summary		List the tools of a backend
//	@Tags			servers
//	@Produce		json
//	@Param			id	path		string	true	"Backend id"
//	@Success		200	{object}	ToolListResponse
//	@Router			/api/v1/servers/{id}/tools [get]
func (s *ServerRoutes) listServerTools(w http.ResponseWriter, r *http.Request) error {
	tools, err := s.manager.Tools(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, ToolListResponse{Tools: tools})
	return nil
}

// getServerStats
//
//	@Summary		Get call statistics of a backend
//	@Tags			servers
//	@Produce		json
//	@Param			id	path		string	true	"Backend id"
//	@Success		200	{object}	StatsResponse
//	@Router			/api/v1/servers/{id}/stats [get]
func (s *ServerRoutes) getServerStats(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if _, err := s.manager.Get(id); err != nil {
		return err
	}
	st := s.stats.Get(id)
	writeJSON(w, http.StatusOK, StatsResponse{
		ServerID:          id,
		ServerStats:       st,
		AverageDurationMs: st.AverageDuration().Milliseconds(),
	})
	return nil
}

// resetServerStats
//
//	@Summary		Reset call statistics of a backend
//	@Tags			servers
//	@Param			id	path		string	true	"Backend id"
//	@Success		204	{string}	string	"No Content"
//	@Router			/api/v1/servers/{id}/stats [delete]
func (s *ServerRoutes) resetServerStats(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if _, err := s.manager.Get(id); err != nil {
		return err
	}
	if err := s.stats.Reset(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *ServerRoutes) writeView(w http.ResponseWriter, id string) error {
	view, err := s.manager.Get(id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

// CreateServerRequest is the body of POST /servers.
type CreateServerRequest struct {
	ID        string               `json:"id,omitempty"`
	Name      string               `json:"name"`
	Enabled   bool                 `json:"enabled"`
	Transport config.TransportType `json:"transport"`
	Command   string               `json:"command,omitempty"`
	Args      []string             `json:"args,omitempty"`
	Env       map[string]string    `json:"env,omitempty"`
	URL       string               `json:"url,omitempty"`
	HTTPMode  string               `json:"http_mode,omitempty"`
	Headers   map[string]string    `json:"headers,omitempty"`
	Tags      []string             `json:"tags,omitempty"`
}

func (req CreateServerRequest) toBackend() config.BackendConfig {
	return config.BackendConfig{
		ID:        req.ID,
		Name:      req.Name,
		Enabled:   req.Enabled,
		Transport: req.Transport,
		Command:   req.Command,
		Args:      req.Args,
		Env:       req.Env,
		URL:       req.URL,
		HTTPMode:  req.HTTPMode,
		Headers:   req.Headers,
		Tags:      req.Tags,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}
