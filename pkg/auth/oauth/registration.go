// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"net/http"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/networking"
)

// ClientName is the client_name sent during dynamic registration.
const ClientName = "mcpgate"

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
	responseTypeCode       = "code"
	authMethodNone         = "none"
)

// RegistrationRequest is the RFC 7591 client metadata sent to the registration endpoint.
type RegistrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
}

// Registration is the part of the registration response the flow keeps.
type Registration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// RegisterClient registers a public client for redirectURI.
func RegisterClient(ctx context.Context, client networking.HTTPClient, endpoint, redirectURI string) (*Registration, error) {
	if err := networking.ValidateEndpointURL(endpoint); err != nil {
		return nil, mcperrors.NewOAuthError("invalid registration endpoint", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req := RegistrationRequest{
		RedirectURIs:            []string{redirectURI},
		ClientName:              ClientName,
		TokenEndpointAuthMethod: authMethodNone,
		GrantTypes:              []string{grantAuthorizationCode, grantRefreshToken},
		ResponseTypes:           []string{responseTypeCode},
	}
	reg, err := networking.FetchJSON[Registration](ctx, client, endpoint,
		networking.WithMethod(http.MethodPost),
		networking.WithJSONBody(req),
		networking.WithAcceptedStatus(http.StatusCreated),
		networking.WithMaxResponseSize(networking.DefaultMaxResponseSize))
	if err != nil {
		return nil, mcperrors.NewOAuthError("dynamic client registration failed", err)
	}
	if reg.ClientID == "" {
		return nil, mcperrors.NewOAuthError("registration response has no client_id", nil)
	}
	logger.Infow("registered OAuth client", "client_id", reg.ClientID)
	return reg, nil
}
