// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package daemon assembles the gateway process: configuration state,
// statistics, OAuth, the lifecycle orchestrator, the gateway listener and the
// admin API, and runs them until the context ends.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/mcpgate/pkg/api"
	v1 "github.com/stacklok/mcpgate/pkg/api/v1"
	"github.com/stacklok/mcpgate/pkg/auth/oauth"
	"github.com/stacklok/mcpgate/pkg/config"
	"github.com/stacklok/mcpgate/pkg/connections"
	"github.com/stacklok/mcpgate/pkg/discovery"
	"github.com/stacklok/mcpgate/pkg/events"
	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/integrations"
	"github.com/stacklok/mcpgate/pkg/lifecycle"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/process"
	"github.com/stacklok/mcpgate/pkg/state"
	"github.com/stacklok/mcpgate/pkg/stats"
	"github.com/stacklok/mcpgate/pkg/storage"
	"github.com/stacklok/mcpgate/pkg/storage/sqlite"
	"github.com/stacklok/mcpgate/pkg/toolcall"
	"github.com/stacklok/mcpgate/pkg/versions"
)

const shutdownTimeout = 5 * time.Second

// Options configure a Daemon. Zero values use the xdg locations.
type Options struct {
	// ConfigPath overrides the configuration file.
	ConfigPath string
	// Port overrides the configured gateway port.
	Port int
	// IntegrationPath overrides the published endpoints file.
	IntegrationPath string
	// TokenStore replaces the OS keyring for OAuth records.
	TokenStore oauth.RecordStore
	// OAuthOptions are passed to the OAuth manager.
	OAuthOptions []oauth.ManagerOption
	// Metrics enables the Prometheus endpoint.
	Metrics bool
}

// Daemon is a fully wired gateway process.
type Daemon struct {
	state        *state.State
	registry     *connections.Registry
	recorder     *stats.Recorder
	statsStore   storage.StatsStore
	orchestrator *lifecycle.Orchestrator
	gateway      *gateway.Server
	syncer       integrations.Syncer
	logs         *events.Buffer
	port         int
	startedAt    time.Time
}

// New loads the configuration and builds every component. Nothing listens
// until Run.
func New(ctx context.Context, opts Options) (*Daemon, error) {
	st, err := state.Load(ctx, config.NewLocalStore(opts.ConfigPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	statsPath, err := statsDBPath(st.StatsConfig())
	if err != nil {
		return nil, err
	}
	statsStore, err := sqlite.OpenStatsStore(ctx, statsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open statistics store: %w", err)
	}

	var metrics *stats.Metrics
	if opts.Metrics {
		metrics = stats.NewMetrics(true)
	}

	logs := events.NewBuffer(events.DefaultBufferSize)
	sink := events.Multi{events.LogSink{}, logs}

	recorder := stats.NewRecorder(stats.WithStore(statsStore), stats.WithMetrics(metrics))
	recorder.OnRecord = func(serverID string) {
		sink.Emit(events.Event{Type: events.EventToolCallRecorded, ServerID: serverID, Time: time.Now()})
	}
	if err := recorder.Load(ctx); err != nil {
		logger.Warnw("failed to load call statistics, starting empty", "error", err)
	}

	syncer, err := integrations.NewFileSyncer(opts.IntegrationPath)
	if err != nil {
		_ = statsStore.Close()
		return nil, err
	}

	tokenStore := opts.TokenStore
	if tokenStore == nil {
		tokenStore = oauth.NewKeyringStore()
	}

	d := &Daemon{
		state:      st,
		registry:   connections.NewRegistry(),
		recorder:   recorder,
		statsStore: statsStore,
		syncer:     syncer,
		logs:       logs,
		port:       opts.Port,
	}
	if d.port == 0 {
		d.port = st.GatewayConfig().Port
	}

	notifier := gateway.NewNotifier()
	d.orchestrator = lifecycle.NewOrchestrator(st, d.registry,
		lifecycle.WithAuthenticator(oauth.NewManager(tokenStore, opts.OAuthOptions...)),
		lifecycle.WithEvents(sink),
		lifecycle.WithSyncer(syncer),
		lifecycle.WithNotifier(notifier),
		lifecycle.WithMetrics(metrics),
		lifecycle.WithRecorder(recorder),
		lifecycle.WithPort(func() int { return d.gateway.Port() }),
	)

	admin := api.Router(api.Deps{
		Manager: d.orchestrator,
		Stats:   recorder,
		Logs:    logs,
		Status:  d.Status,
	})
	d.gateway = gateway.New(gateway.Deps{
		State:     st,
		Registry:  d.registry,
		Recorder:  recorder,
		Notifier:  notifier,
		Discovery: discovery.NewHandler(st, toolcall.NewForwarder(st, d.registry, recorder)),
		Metrics:   metrics,
		Admin:     admin,
	})
	return d, nil
}

func statsDBPath(cfg config.StatsConfig) (string, error) {
	if cfg.Disabled {
		return "", nil
	}
	if cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	p, err := xdg.DataFile(filepath.Join("mcpgate", "stats.db"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve statistics database path: %w", err)
	}
	return p, nil
}

// Status reports the running gateway.
func (d *Daemon) Status() v1.GatewayStatus {
	return v1.GatewayStatus{
		Running:   d.gateway.Ready(),
		PID:       os.Getpid(),
		Port:      d.gateway.Port(),
		Version:   versions.GetVersionInfo().Version,
		StartedAt: d.startedAt,
		Servers:   len(d.state.Backends()),
		Connected: d.registry.Len(),
		Discovery: d.state.DiscoveryEnabled(),
	}
}

// Port is the bound gateway port, or 0 before Run binds it.
func (d *Daemon) Port() int {
	return d.gateway.Port()
}

// Ready reports whether the gateway is serving.
func (d *Daemon) Ready() bool {
	return d.gateway.Ready()
}

// Run binds the gateway, records the runtime file, reconnects the backends
// and serves until ctx ends. On the way out it closes every session, flushes
// statistics and removes the runtime file.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.gateway.Listen(d.port); err != nil {
		return fmt.Errorf("failed to bind gateway: %w", err)
	}
	d.startedAt = time.Now().UTC()

	if err := process.WriteRuntimeInfo(process.RuntimeInfo{
		PID:       os.Getpid(),
		Port:      d.gateway.Port(),
		StartedAt: d.startedAt,
	}); err != nil {
		logger.Warnw("failed to write runtime file", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(d.gateway.Serve)
	g.Go(func() error {
		d.recorder.Run(gctx, d.state.StatsConfig().FlushEvery())
		return nil
	})
	g.Go(func() error {
		if err := d.orchestrator.Recover(gctx, d.gateway.Ready); err != nil {
			logger.Warnw("backend recovery failed", "error", err)
		}
		if err := d.orchestrator.ConnectEnabled(gctx); err != nil {
			logger.Warnw("failed to connect enabled backends", "error", err)
		}
		// publish the endpoints even when nothing connected
		if err := d.syncer.Sync(d.gateway.Port(), integrations.Endpoints(d.state.DiscoveryEnabled(), d.state.ConnectedBackends())); err != nil {
			logger.Warnw("failed to publish gateway endpoints", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return d.shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Daemon) shutdown() error {
	logger.Info("shutting down gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := d.gateway.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("gateway shutdown: %w", err))
	}
	d.orchestrator.Close()

	if err := d.syncer.Sync(d.gateway.Port(), nil); err != nil {
		logger.Warnw("failed to clear published endpoints", "error", err)
	}
	if err := process.RemoveRuntimeInfo(); err != nil {
		logger.Warnw("failed to remove runtime file", "error", err)
	}
	return errors.Join(errs...)
}

// Close releases the statistics store. Call it once Run has returned.
func (d *Daemon) Close() error {
	return d.statsStore.Close()
}
