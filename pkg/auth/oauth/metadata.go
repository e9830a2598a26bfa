// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth implements the OAuth 2.0 authorization code flow with PKCE
// used to sign in to remote MCP backends: authorization server discovery,
// dynamic client registration, the loopback callback, token exchange,
// refresh and storage.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/networking"
)

const (
	protectedResourcePath = "/.well-known/oauth-protected-resource"
	authServerPath        = "/.well-known/oauth-authorization-server"
)

// Metadata is the subset of RFC 8414 authorization server metadata the flow uses.
type Metadata struct {
	Issuer                        string   `json:"issuer,omitempty"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RegistrationEndpoint          string   `json:"registration_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// protectedResource is the RFC 9728 protected resource metadata document.
type protectedResource struct {
	Resource             string   `json:"resource,omitempty"`
	AuthorizationServers []string `json:"authorization_servers"`
}

// DiscoverMetadata finds the authorization server of an MCP server. It
// follows the protected resource document first and falls back to the
// authorization server document on the MCP server's own origin.
func DiscoverMetadata(ctx context.Context, client networking.HTTPClient, serverURL string) (*Metadata, error) {
	origin, err := networking.Origin(serverURL)
	if err != nil {
		return nil, mcperrors.NewOAuthError("invalid server URL", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	md, err := discoverViaProtectedResource(ctx, client, origin)
	if err == nil {
		return md, nil
	}
	logger.Debugw("protected resource discovery failed, trying origin", "origin", origin, "error", err)

	md, err = fetchAuthServerMetadata(ctx, client, origin+authServerPath)
	if err != nil {
		return nil, mcperrors.NewOAuthError(fmt.Sprintf("authorization server discovery failed for %s", origin), err)
	}
	return md, nil
}

func discoverViaProtectedResource(ctx context.Context, client networking.HTTPClient, origin string) (*Metadata, error) {
	resource, err := networking.FetchJSON[protectedResource](ctx, client, origin+protectedResourcePath,
		networking.WithMaxResponseSize(networking.DefaultMaxResponseSize))
	if err != nil {
		return nil, err
	}
	if len(resource.AuthorizationServers) == 0 {
		return nil, fmt.Errorf("no authorization_servers in protected resource metadata")
	}
	issuer := resource.AuthorizationServers[0]
	logger.Debugw("found authorization server via protected resource", "issuer", issuer)

	var lastErr error
	for _, candidate := range authServerMetadataURLs(issuer) {
		md, err := fetchAuthServerMetadata(ctx, client, candidate)
		if err == nil {
			return md, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// authServerMetadataURLs lists where the metadata of issuer may live: the
// RFC 8414 path-aware location first when the issuer has a path, then the origin.
func authServerMetadataURLs(issuer string) []string {
	u, err := url.Parse(issuer)
	if err != nil || u.Host == "" {
		return nil
	}
	origin := u.Scheme + "://" + u.Host
	path := strings.TrimSuffix(u.Path, "/")
	if path == "" {
		return []string{origin + authServerPath}
	}
	return []string{origin + authServerPath + path, origin + authServerPath}
}

func fetchAuthServerMetadata(ctx context.Context, client networking.HTTPClient, metadataURL string) (*Metadata, error) {
	if err := networking.ValidateEndpointURL(metadataURL); err != nil {
		return nil, err
	}
	md, err := networking.FetchJSON[Metadata](ctx, client, metadataURL,
		networking.WithMaxResponseSize(networking.DefaultMaxResponseSize))
	if err != nil {
		return nil, err
	}
	if md.AuthorizationEndpoint == "" || md.TokenEndpoint == "" {
		return nil, fmt.Errorf("metadata at %s lacks authorization_endpoint or token_endpoint", metadataURL)
	}
	for _, endpoint := range []string{md.AuthorizationEndpoint, md.TokenEndpoint} {
		if err := networking.ValidateEndpointURL(endpoint); err != nil {
			return nil, err
		}
	}
	logger.Debugw("authorization server metadata",
		"issuer", md.Issuer,
		"authorization_endpoint", md.AuthorizationEndpoint,
		"token_endpoint", md.TokenEndpoint)
	return md, nil
}
