// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// expiryMargin is how early a token is treated as expired.
const expiryMargin int64 = 60

// Tokens is the stored token set of one backend.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiresIn is the lifetime in seconds, nil when the server did not say.
	ExpiresIn *int64 `json:"expires_in,omitempty"`
	// ObtainedAt is a unix timestamp in seconds.
	ObtainedAt int64 `json:"obtained_at"`
}

// IsExpired reports whether the token is within a minute of its expiry.
// Tokens without a known lifetime never expire.
func (t *Tokens) IsExpired(now time.Time) bool {
	if t == nil || t.ExpiresIn == nil {
		return false
	}
	return now.Unix()+expiryMargin >= t.ObtainedAt+*t.ExpiresIn
}

// NewTokens converts an oauth2 token obtained at now.
func NewTokens(tok *oauth2.Token, now time.Time) *Tokens {
	out := &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ObtainedAt:   now.Unix(),
	}

	switch {
	case tok.ExpiresIn > 0:
		secs := tok.ExpiresIn
		out.ExpiresIn = &secs
	case !tok.Expiry.IsZero():
		secs := int64(tok.Expiry.Sub(now).Seconds())
		out.ExpiresIn = &secs
	default:
		if exp, ok := jwtExpiry(tok.AccessToken); ok {
			secs := exp.Unix() - now.Unix()
			out.ExpiresIn = &secs
		}
	}
	return out
}

// jwtExpiry reads the exp claim of a JWT access token without verifying it.
func jwtExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
