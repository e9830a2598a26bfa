// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/connections"
	mcperrors "github.com/stacklok/mcpgate/pkg/errors"
	"github.com/stacklok/mcpgate/pkg/events"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/mcpclient"
)

// ClientConnector connects backends with mcpclient.
type ClientConnector struct {
	// Events receives the stderr lines of process backends. May be nil.
	Events events.Sink
	// HTTPClient is used for HTTP backends. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

var _ Connector = (*ClientConnector)(nil)

// Connect spawns or dials the backend and runs the handshake.
func (c *ClientConnector) Connect(ctx context.Context, backend config.BackendConfig, accessToken string) (connections.Client, error) {
	var (
		client *mcpclient.Client
		err    error
	)
	switch backend.Transport {
	case config.TransportStdio:
		client, err = mcpclient.ConnectProcess(ctx, mcpclient.ProcessConfig{
			ServerID: backend.ID,
			Command:  backend.Command,
			Args:     backend.Args,
			Env:      backend.Env,
			OnStderr: c.stderrHandler(backend),
		})
	case config.TransportHTTP:
		client, err = mcpclient.ConnectHTTP(ctx, mcpclient.HTTPConfig{
			ServerID:    backend.ID,
			URL:         backend.URL,
			Headers:     backend.Headers,
			AccessToken: accessToken,
			Mode:        backend.HTTPMode,
			HTTPClient:  c.HTTPClient,
		})
	default:
		return nil, mcperrors.NewConnectionFailedError(fmt.Sprintf("unsupported transport %q", backend.Transport), nil)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *ClientConnector) stderrHandler(backend config.BackendConfig) func(slog.Level, string) {
	return func(level slog.Level, line string) {
		logger.Logw(level, line, "server", backend.Name)
		if c.Events == nil {
			return
		}
		c.Events.Emit(events.Event{
			Type:     events.EventServerLog,
			ServerID: backend.ID,
			Level:    events.LevelName(level),
			Message:  line,
			Time:     time.Now(),
		})
	}
}
