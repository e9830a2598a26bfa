// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResponse struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

func TestFetchJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		opts       []FetchOption
		wantErr    string
		wantStatus int
		want       testResponse
	}{
		{
			name: "successful GET",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, ContentTypeJSON, r.Header.Get("Accept"))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				_ = json.NewEncoder(w).Encode(testResponse{Message: "hello", Value: 42})
			},
			want: testResponse{Message: "hello", Value: 42},
		},
		{
			name: "POST with JSON body and 201 accepted",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, ContentTypeJSON, r.Header.Get("Content-Type"))
				var in map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(testResponse{Message: in["name"]})
			},
			opts: []FetchOption{
				WithMethod(http.MethodPost),
				WithJSONBody(map[string]string{"name": "mcpgate"}),
				WithAcceptedStatus(http.StatusCreated),
			},
			want: testResponse{Message: "mcpgate"},
		},
		{
			name: "non-accepted status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", http.StatusNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "wrong content type",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
			wantErr: "unexpected content type",
		},
		{
			name: "invalid JSON",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte("{"))
			},
			wantErr: "failed to parse JSON response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			got, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL, tt.opts...)
			switch {
			case tt.wantStatus != 0:
				require.Error(t, err)
				assert.True(t, IsHTTPError(err, tt.wantStatus))
			case tt.wantErr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, *got)
			}
		})
	}
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	err := NewHTTPError(http.StatusUnauthorized, "http://127.0.0.1/mcp", strings.Repeat("x", 2*DefaultErrorPreviewSize))
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Len(t, httpErr.Message, DefaultErrorPreviewSize)

	wrapped := fmt.Errorf("initialize: %w", err)
	assert.True(t, IsHTTPError(wrapped, 0))
	assert.True(t, IsHTTPError(wrapped, http.StatusUnauthorized))
	assert.False(t, IsHTTPError(wrapped, http.StatusForbidden))
	assert.False(t, IsHTTPError(errors.New("plain"), 0))
}

func TestIsLocalhost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bool
	}{
		{"localhost", true},
		{"localhost:8080", true},
		{"LOCALHOST", true},
		{"127.0.0.1", true},
		{"127.0.0.1:55123", true},
		{"[::1]", true},
		{"[::1]:9000", true},
		{"example.com", false},
		{"10.0.0.1:80", false},
		{"localhost.evil.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsLocalhost(tt.input))
		})
	}
}

func TestValidateEndpointURL(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateEndpointURL("https://auth.example.com/register"))
	assert.NoError(t, ValidateEndpointURL("http://localhost:9000/register"))
	assert.NoError(t, ValidateEndpointURL("http://127.0.0.1/token"))
	assert.Error(t, ValidateEndpointURL("http://auth.example.com/register"))
	assert.Error(t, ValidateEndpointURL("ftp://auth.example.com"))
	assert.Error(t, ValidateEndpointURL("/relative"))
}

func TestOrigin(t *testing.T) {
	t.Parallel()

	origin, err := Origin("https://api.example.com:8443/v1/mcp?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com:8443", origin)

	_, err = Origin("/no/host")
	assert.Error(t, err)
}

func TestPreferredPort(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "alice", "bob", "a-very-long-user-name"} {
		p := PreferredPort(name)
		assert.GreaterOrEqual(t, p, PortRangeStart)
		assert.Less(t, p, PortRangeStart+PortRangeSize)
		assert.Equal(t, p, PreferredPort(name), "port must be stable for %q", name)
	}
	assert.NotEqual(t, PreferredPort("alice"), PreferredPort("bob"))
}

func TestCandidatePortsWrapInsideRange(t *testing.T) {
	t.Parallel()

	last := PortRangeStart + PortRangeSize - 1
	ports := candidatePorts(last, 0)
	require.Len(t, ports, PortAttempts)
	assert.Equal(t, last, ports[0])
	assert.Equal(t, PortRangeStart, ports[1])

	withOverride := candidatePorts(last, 4242)
	require.Len(t, withOverride, PortAttempts+1)
	assert.Equal(t, 4242, withOverride[0])
}

func TestListenLoopback(t *testing.T) {
	t.Parallel()

	l, err := ListenLoopback(0)
	require.NoError(t, err)
	defer l.Close()

	assert.True(t, IsLocalhost(l.Addr().String()))
}
