// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// PKCE is a code verifier and its S256 challenge.
type PKCE struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE creates a verifier from 32 random bytes.
func GeneratePKCE() PKCE {
	verifier := oauth2.GenerateVerifier()
	return PKCE{Verifier: verifier, Challenge: oauth2.S256ChallengeFromVerifier(verifier)}
}

// GenerateState returns a random state nonce from 16 bytes.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// oauth2Config builds the client configuration for md.
func oauth2Config(md *Metadata, clientID, clientSecret, redirectURI string) *oauth2.Config {
	style := oauth2.AuthStyleAutoDetect
	if clientSecret == "" {
		style = oauth2.AuthStyleInParams
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       md.ScopesSupported,
		Endpoint: oauth2.Endpoint{
			AuthURL:   md.AuthorizationEndpoint,
			TokenURL:  md.TokenEndpoint,
			AuthStyle: style,
		},
	}
}

// BuildAuthorizationURL returns the URL the user opens to grant access.
// Scopes are requested only when the server advertises some.
func BuildAuthorizationURL(md *Metadata, clientID, redirectURI string, pkce PKCE, state string) string {
	cfg := oauth2Config(md, clientID, "", redirectURI)
	cfg.Scopes = nil
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(pkce.Verifier)}
	if len(md.ScopesSupported) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(md.ScopesSupported, " ")))
	}
	return cfg.AuthCodeURL(state, opts...)
}
