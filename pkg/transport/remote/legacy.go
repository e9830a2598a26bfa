// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/jsonrpc2"

	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/jsonrpc"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/transport/pending"
	"github.com/stacklok/mcpgate/pkg/transport/sse"
	"github.com/stacklok/mcpgate/pkg/transport/types"
)

const streamReadSize = 32 * 1024

// LegacyTransport receives responses over one event stream and sends
// messages as POSTs to the endpoint the stream announced.
type LegacyTransport struct {
	opts     Options
	ids      types.IDGenerator
	pending  *pending.Table
	endpoint string

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ types.Transport = (*LegacyTransport)(nil)
	_ types.Watchable = (*LegacyTransport)(nil)
)

func connectLegacy(ctx context.Context, opts Options) (*LegacyTransport, error) {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, opts.URL, nil)
	if err != nil {
		cancel()
		return nil, mcperrors.NewConnectionFailedError("failed to build stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	applyHeaders(req, &opts)

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return nil, mcperrors.NewTransportError("failed to open event stream", err)
	}
	if !isSuccess(resp.StatusCode) {
		defer func() { _ = resp.Body.Close() }()
		cancel()
		return nil, statusError(resp, opts.URL)
	}

	base, err := url.Parse(opts.URL)
	if err != nil {
		_ = resp.Body.Close()
		cancel()
		return nil, mcperrors.NewConnectionFailedError("invalid URL", err)
	}

	t := &LegacyTransport{
		opts:    opts,
		pending: pending.New(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	endpointCh := make(chan string, 1)
	go t.readStream(resp.Body, base, endpointCh)

	timer := time.NewTimer(opts.EndpointTimeout)
	defer timer.Stop()

	select {
	case endpoint := <-endpointCh:
		t.endpoint = endpoint
		logger.Debugw("legacy stream announced endpoint", "server", opts.ServerID, "endpoint", endpoint)
		return t, nil
	case <-t.done:
		_ = t.Close()
		return nil, mcperrors.NewTransportError("event stream closed before the endpoint event", nil)
	case <-timer.C:
		_ = t.Close()
		return nil, mcperrors.NewTransportError(
			fmt.Sprintf("no endpoint event within %v", opts.EndpointTimeout), nil)
	case <-ctx.Done():
		_ = t.Close()
		return nil, mcperrors.NewTransportError("connect cancelled", ctx.Err())
	}
}

// readStream owns the parser for the whole life of the stream, so a frame
// split across reads is reassembled before dispatch.
func (t *LegacyTransport) readStream(body io.ReadCloser, base *url.URL, endpointCh chan<- string) {
	defer func() {
		_ = body.Close()
		t.pending.FailAll(mcperrors.NewTransportError("SSE stream closed", nil))
		close(t.done)
	}()

	parser := sse.NewParser()
	endpointSeen := false
	handle := func(events []sse.Event) {
		for _, ev := range events {
			switch {
			case ev.Name == "endpoint":
				if endpointSeen {
					continue
				}
				endpoint, err := resolveEndpoint(base, ev.Data)
				if err != nil {
					logger.Warnw("ignoring invalid endpoint event", "server", t.opts.ServerID, "error", err)
					continue
				}
				endpointSeen = true
				endpointCh <- endpoint
			case ev.IsMessage():
				t.dispatch(ev.Data)
			}
		}
	}

	buf := make([]byte, streamReadSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			handle(parser.Feed(buf[:n]))
		}
		if err != nil {
			handle(parser.Flush())
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				logger.Debugw("legacy stream ended", "server", t.opts.ServerID, "error", err)
			}
			return
		}
	}
}

func (t *LegacyTransport) dispatch(data string) {
	msg, err := jsonrpc2.DecodeMessage([]byte(strings.TrimSpace(data)))
	if err != nil {
		logger.Debugw("ignoring undecodable stream event", "server", t.opts.ServerID, "error", err)
		return
	}
	resp, ok := msg.(*jsonrpc2.Response)
	if !ok {
		logger.Debugw("ignoring server-initiated message", "server", t.opts.ServerID)
		return
	}

	key := jsonrpc.IDKey(resp.ID)
	if t.pending.Complete(key, resp) {
		return
	}
	// some servers echo numeric ids as strings
	if s, isString := resp.ID.Raw().(string); isString {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && t.pending.Complete(jsonrpc.IDKey(jsonrpc2.Int64ID(n)), resp) {
			return
		}
	}
	logger.Debugw("dropping response with no waiter", "server", t.opts.ServerID, "id", resp.ID.Raw())
}

// resolveEndpoint accepts an absolute URL or a path relative to the stream's origin.
func resolveEndpoint(base *url.URL, data string) (string, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return "", errors.New("empty endpoint")
	}
	if strings.HasPrefix(data, "http://") || strings.HasPrefix(data, "https://") {
		return data, nil
	}
	if !strings.HasPrefix(data, "/") {
		data = "/" + data
	}
	return base.Scheme + "://" + base.Host + data, nil
}

// Endpoint returns the POST endpoint announced by the stream.
func (t *LegacyTransport) Endpoint() string {
	return t.endpoint
}

func (t *LegacyTransport) post(ctx context.Context, msg jsonrpc2.Message) error {
	body, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return mcperrors.NewProtocolError("failed to encode message", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return mcperrors.NewTransportError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptBoth)
	applyHeaders(req, &t.opts)

	resp, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return requestError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return statusError(resp, t.endpoint)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	return nil
}

// SendRequest registers the id, posts the request and waits for the response
// to arrive on the stream.
func (t *LegacyTransport) SendRequest(ctx context.Context, method string, params any) (*jsonrpc2.Response, error) {
	id := t.ids.Next()
	req, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		return nil, mcperrors.NewProtocolError("failed to build request", err)
	}

	key := jsonrpc.IDKey(id)
	ch, err := t.pending.Register(key)
	if err != nil {
		return nil, err
	}
	if err := t.post(ctx, req); err != nil {
		t.pending.Cancel(key)
		return nil, err
	}

	resp, err := t.pending.Wait(ctx, key, ch, t.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return resp, jsonrpc.ResponseError(resp)
}

// SendNotification posts a message without an id.
func (t *LegacyTransport) SendNotification(ctx context.Context, method string, params any) error {
	if err := t.pending.Err(); err != nil {
		return err
	}
	msg, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return mcperrors.NewProtocolError("failed to build notification", err)
	}
	return t.post(ctx, msg)
}

// Done is closed when the event stream ends.
func (t *LegacyTransport) Done() <-chan struct{} {
	return t.done
}

// Close cancels the event stream. Outstanding requests fail with a stream-closed error.
func (t *LegacyTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
	})
	return nil
}
