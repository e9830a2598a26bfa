// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultMaxResponseSize is the default maximum response body size (1MB).
	DefaultMaxResponseSize = 1024 * 1024

	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"
)

// HTTPClient is the subset of *http.Client used by this package.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchOption configures a fetch request.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	method          string
	headers         http.Header
	body            io.Reader
	maxResponseSize int64
	acceptStatus    map[int]bool
}

func newFetchOptions() *fetchOptions {
	return &fetchOptions{
		method:          http.MethodGet,
		headers:         make(http.Header),
		maxResponseSize: DefaultMaxResponseSize,
		acceptStatus:    map[int]bool{http.StatusOK: true},
	}
}

// WithMethod sets the HTTP method for the request.
func WithMethod(method string) FetchOption {
	return func(opts *fetchOptions) {
		opts.method = method
	}
}

// WithHeader sets a single request header.
func WithHeader(key, value string) FetchOption {
	return func(opts *fetchOptions) {
		opts.headers.Set(key, value)
	}
}

// WithJSONBody marshals v as the request body and sets the JSON content type.
func WithJSONBody(v any) FetchOption {
	return func(opts *fetchOptions) {
		data, err := json.Marshal(v)
		if err != nil {
			opts.body = errReader{err: err}
			return
		}
		opts.body = strings.NewReader(string(data))
		opts.headers.Set("Content-Type", ContentTypeJSON)
	}
}

// WithAcceptedStatus adds status codes that count as success. 200 is always accepted.
func WithAcceptedStatus(codes ...int) FetchOption {
	return func(opts *fetchOptions) {
		for _, c := range codes {
			opts.acceptStatus[c] = true
		}
	}
}

// WithMaxResponseSize sets the maximum response body size.
func WithMaxResponseSize(size int64) FetchOption {
	return func(opts *fetchOptions) {
		opts.maxResponseSize = size
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// FetchJSON performs an HTTP request and decodes a JSON response body into T.
// Responses must carry a JSON content type. Non-accepted statuses yield an *HTTPError.
func FetchJSON[T any](ctx context.Context, client HTTPClient, requestURL string, opts ...FetchOption) (*T, error) {
	options := newFetchOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.headers.Get("Accept") == "" {
		options.headers.Set("Accept", ContentTypeJSON)
	}

	req, err := http.NewRequestWithContext(ctx, options.method, requestURL, options.body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = options.headers

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, options.maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if !options.acceptStatus[resp.StatusCode] {
		return nil, NewHTTPError(resp.StatusCode, requestURL, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), ContentTypeJSON) {
		return nil, fmt.Errorf("unexpected content type: %s", contentType)
	}

	var data T
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return &data, nil
}
