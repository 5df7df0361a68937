package main

import (
	"context"
	"errors"
	"os"

	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/internal/ingest"
	"github.com/squadwarden/warden/internal/monitor"
	"github.com/squadwarden/warden/internal/poller"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/internal/rotation"
	"github.com/squadwarden/warden/internal/supervisor"
)

// runLive follows the server log until ctx is cancelled.
func runLive(ctx context.Context) error {
	a, err := newApp(ctx, appOptions{Console: os.Stdout})
	if err != nil {
		return err
	}

	server := config.GetServerConfig()
	tree := supervisor.NewTree(a.logger, supervisor.DefaultTreeConfig())

	tree.AddService(a.async)
	tree.AddIngestService(ingest.NewTailer(ingest.TailConfig{
		Path:      server.LogPath,
		FromStart: server.FromStart,
		Interval:  server.TailInterval,
	}, a.pipeline, a.logger))

	if lister, ok := a.endpoint.(rcon.Lister); ok {
		tree.AddIngestService(poller.New(lister, a.pipeline, server.PollInterval, a.clock, a.logger))
	} else {
		a.logger.Warn("Server endpoint cannot list players or squads, round and roster snapshots are disabled")
	}

	if a.rotation != nil {
		tree.AddIngestService(rotation.NewWatcher(a.rotation, a.dispatcher))
	}

	if monitorCfg := config.GetMonitorConfig(); monitorCfg.Enabled {
		tree.AddService(monitor.NewService(a.monitorDependencies(monitorCfg)))
	}

	a.logger.Info("Following server log", "path", server.LogPath, "fromStart", server.FromStart, "dryRun", server.DryRun)
	serveErr := tree.Serve(ctx)
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		a.logger.Warn("Services did not stop in time", "count", len(report))
	}

	a.logger.Info("Shutting down")
	return errors.Join(serveErr, a.Close(context.Background()))
}
