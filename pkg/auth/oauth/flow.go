// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/logger"
)

// Flow runs the interactive authorization code flow with PKCE.
type Flow struct {
	Store      RecordStore
	HTTPClient *http.Client
	// OpenBrowser opens the authorization URL. Defaults to the system browser.
	OpenBrowser     func(url string) error
	CallbackTimeout time.Duration
	Now             func() time.Time
}

func (f *Flow) httpClient() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func (f *Flow) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// Authorize signs the user in to the MCP server at serverURL and stores the
// resulting tokens under backendID.
func (f *Flow) Authorize(ctx context.Context, backendID, serverURL string) (*Tokens, error) {
	rec, err := f.Store.Get(ctx, backendID)
	if err != nil {
		if !mcperrors.IsNotFound(err) {
			return nil, err
		}
		rec = &Record{}
	}

	md, err := DiscoverMetadata(ctx, f.httpClient(), serverURL)
	if err != nil {
		return nil, err
	}
	rec.Metadata = md

	callback, err := StartCallbackServer(f.CallbackTimeout)
	if err != nil {
		return nil, err
	}
	defer callback.Close()
	redirectURI := callback.RedirectURI()

	if rec.ClientID == "" {
		if md.RegistrationEndpoint == "" {
			return nil, mcperrors.NewOAuthError(
				"Server has no registration_endpoint and no client_id is stored. Cannot authenticate without a client_id.", nil)
		}
		reg, err := RegisterClient(ctx, f.httpClient(), md.RegistrationEndpoint, redirectURI)
		if err != nil {
			return nil, err
		}
		rec.ClientID = reg.ClientID
		rec.ClientSecret = reg.ClientSecret
	}
	// Persist registration before the browser step so an abandoned sign-in
	// does not register a second client next time.
	if err := f.Store.Put(ctx, backendID, rec); err != nil {
		return nil, err
	}

	pkce := GeneratePKCE()
	state, err := GenerateState()
	if err != nil {
		return nil, mcperrors.NewOAuthError("failed to generate state", err)
	}
	authURL := BuildAuthorizationURL(md, rec.ClientID, redirectURI, pkce, state)

	open := f.OpenBrowser
	if open == nil {
		open = browser.OpenURL
	}
	logger.Infow("opening browser for sign-in", "server", backendID)
	if err := open(authURL); err != nil {
		logger.Warnw("failed to open browser, open the URL manually", "url", authURL, "error", err)
	}

	result, err := callback.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if result.State != state {
		return nil, mcperrors.NewOAuthError("OAuth state mismatch", nil)
	}

	cfg := oauth2Config(md, rec.ClientID, rec.ClientSecret, redirectURI)
	tok, err := cfg.Exchange(context.WithValue(ctx, oauth2.HTTPClient, f.httpClient()),
		result.Code, oauth2.VerifierOption(pkce.Verifier))
	if err != nil {
		return nil, mcperrors.NewOAuthError("token exchange failed", err)
	}

	rec.Tokens = NewTokens(tok, f.now())
	if err := f.Store.Put(ctx, backendID, rec); err != nil {
		return nil, err
	}
	logger.Infow("signed in", "server", backendID)
	return rec.Tokens, nil
}
