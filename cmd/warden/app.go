package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/squadwarden/warden/internal/autoswitch"
	"github.com/squadwarden/warden/internal/balance"
	"github.com/squadwarden/warden/internal/cache"
	"github.com/squadwarden/warden/internal/claims"
	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/internal/ingest"
	"github.com/squadwarden/warden/internal/logging"
	"github.com/squadwarden/warden/internal/monitor"
	"github.com/squadwarden/warden/internal/nextlayer"
	intOtel "github.com/squadwarden/warden/internal/otel"
	"github.com/squadwarden/warden/internal/parser"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/internal/rotation"
	"github.com/squadwarden/warden/internal/round"
	"github.com/squadwarden/warden/internal/session"
	"github.com/squadwarden/warden/internal/vehicleclaims"
	"github.com/squadwarden/warden/internal/worker"
	"github.com/squadwarden/warden/pkg/core"
)

// appOptions differ between the live service and a replay.
type appOptions struct {
	// Endpoint receives server commands. Nil logs them instead.
	Endpoint rcon.Controller
	// Clock drives every timer. Nil uses the wall clock.
	Clock clock.Clock
	// Console also receives warden's own log output.
	Console io.Writer
	// Synchronous sends commands from the handler that issued them instead
	// of through the bounded send queue.
	Synchronous bool
}

// app is the fully wired engine.
type app struct {
	logs   *logging.SlogManager
	logger *slog.Logger
	files  []*os.File
	otel   *intOtel.Provider

	clock      clock.Clock
	round      *round.Context
	players    *cache.PlayerCache
	correlator *session.Correlator
	dispatcher *dispatcher.Dispatcher
	registry   *claims.Registry

	storage  *storageStack
	endpoint rcon.Controller
	async    *rcon.Async
	control  rcon.Controller

	parser   *parser.Parser
	pipeline *ingest.Pipeline
	worker   *worker.Manager
	claims   *vehicleclaims.Plugin
	rotation *rotation.Plugin
}

func newApp(ctx context.Context, opts appOptions) (a *app, err error) {
	a = &app{
		logs:     logging.NewSlogManager(),
		clock:    opts.Clock,
		round:    round.NewContext(),
		players:  cache.NewPlayerCache(),
		endpoint: opts.Endpoint,
	}
	if a.clock == nil {
		a.clock = clock.Real()
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if err := a.initLogging(ctx, opts.Console); err != nil {
		return a, err
	}
	zl := a.logs.Zerolog()

	a.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(zl))
	if err != nil {
		return a, fmt.Errorf("creating dispatcher: %w", err)
	}

	server := config.GetServerConfig()
	a.storage, err = createStorageStack(ctx, config.GetStorageConfig(), server, a.otel, a.logger, zl)
	if err != nil {
		return a, err
	}
	if err := a.storage.Init(); err != nil {
		return a, fmt.Errorf("initializing storage: %w", err)
	}

	a.initControl(zl, opts.Synchronous)

	a.correlator = session.New(a.logger)
	a.parser = parser.NewParser(a.logger)
	a.parser.SetClock(a.clock)
	a.pipeline = ingest.NewPipeline(a.parser, a.correlator, a.dispatcher, a.logger)

	a.worker, err = worker.NewManager(worker.Dependencies{
		Round:      a.round,
		Players:    a.players,
		Correlator: a.correlator,
		Backend:    a.storage.Backend(),
		Logger:     a.logger,
	})
	if err != nil {
		return a, err
	}
	// Bookkeeping runs before the plugins so they see current state.
	a.worker.RegisterHandlers(a.dispatcher)

	if err := a.initPlugins(); err != nil {
		return a, err
	}
	return a, nil
}

func (a *app) initLogging(ctx context.Context, console io.Writer) error {
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	start := time.Now()
	f, err := os.OpenFile(logging.LogFilePath(logsDir, AppName, start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	a.files = append(a.files, f)

	otelCfg := config.GetOTelConfig()
	providerCfg := intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
		ServerName:   config.GetServerConfig().Name,
	}
	if otelCfg.Enabled && otelCfg.Endpoint == "" {
		otelFile, err := os.OpenFile(logging.LogFilePath(logsDir, AppName+".otel", start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening otel log file: %w", err)
		}
		a.files = append(a.files, otelFile)
		providerCfg.LogWriter = otelFile
	}
	a.otel, err = intOtel.New(ctx, providerCfg)
	if err != nil {
		return fmt.Errorf("creating otel provider: %w", err)
	}

	var out io.Writer = f
	if console != nil {
		out = io.MultiWriter(console, f)
	}
	a.logs.Setup(logging.Options{
		File:        out,
		Level:       viper.GetString("logLevel"),
		Provider:    a.otel.LoggerProvider(),
		ExportLevel: otelCfg.LogLevel,
		Context:     a.round.LogAttrs,
	})
	a.logger = a.logs.Logger()
	a.logger.Info("Starting", "version", CurrentVersion, "build", BuildDate, "logFile", f.Name())
	return nil
}

// initControl builds the outbound command chain: the send queue feeds the
// journal, which records every attempt, then the breaker, then the endpoint.
func (a *app) initControl(zl zerolog.Logger, synchronous bool) {
	if a.endpoint == nil {
		a.endpoint = rcon.NewLogController(zl.With().Str("component", "rcon").Logger())
	}

	rconCfg := config.GetRconConfig()
	breaker := rcon.NewBreaker(a.endpoint, rconCfg.Breaker, a.logger)
	journal := rcon.NewJournal(breaker, a.storage.Backend(), a.clock, a.round.ID, a.logger)
	if synchronous {
		a.control = journal
		return
	}
	a.async = rcon.NewAsync(journal, rconCfg.QueueSize, a.logger)
	a.control = a.async
}

func (a *app) initPlugins() error {
	catalogCfg := config.GetCatalogConfig()
	catalog, err := claims.DefaultCatalog().Extend(catalogCfg.Aliases, catalogCfg.Groups)
	if err != nil {
		return fmt.Errorf("building vehicle catalog: %w", err)
	}
	a.registry = claims.New(claims.Options{
		Catalog:   catalog,
		Clock:     a.clock,
		Serial:    a.dispatcher,
		Logger:    a.logger,
		ClockSkew: config.GetServerConfig().ClockSkew,
	})

	a.claims, err = vehicleclaims.New(config.GetClaimsConfig(), vehicleclaims.Dependencies{
		Registry:      a.registry,
		Players:       a.players,
		Control:       a.control,
		Clock:         a.clock,
		Serial:        a.dispatcher,
		Logger:        a.logger,
		Recorder:      a.storage.Backend(),
		RoundID:       a.round.ID,
		TeamByFaction: a.round.TeamByFaction,
		IsAdmin:       adminMatcher(config.GetAdmins()),
	})
	if err != nil {
		return fmt.Errorf("creating vehicle claims: %w", err)
	}
	a.claims.RegisterHandlers(a.dispatcher)

	balance.New(config.GetBalanceConfig(), a.players, a.control, a.clock, a.dispatcher, a.logger).
		RegisterHandlers(a.dispatcher)

	if config.GetBool("autoswitch.enabled") {
		autoswitch.New(config.GetAutoSwitchConfig(), a.players, a.control, a.logger).
			RegisterHandlers(a.dispatcher)
	}

	nextlayer.New(config.GetNextLayerConfig(), a.round.NextLayer, a.control, a.clock, a.dispatcher, a.logger).
		RegisterHandlers(a.dispatcher)

	if config.GetBool("rotation.enabled") {
		a.rotation = rotation.New(config.GetRotationConfig(), a.control, a.players.Len, a.round.SetNextLayer, nil, a.logger)
		if err := a.rotation.Load(); err != nil {
			a.logger.Warn("Rotation file not loaded, waiting for it to appear", "error", err)
		}
		a.rotation.RegisterHandlers(a.dispatcher)
	}
	return nil
}

// monitorDependencies collects the live status sources.
func (a *app) monitorDependencies(cfg config.MonitorConfig) monitor.Dependencies {
	counters := map[string]func() int64{
		"ingest.lines":     func() int64 { return a.pipeline.Stats().Lines },
		"ingest.events":    func() int64 { return a.pipeline.Stats().Events },
		"ingest.dropped":   func() int64 { return a.pipeline.Stats().Dropped },
		"ingest.failures":  func() int64 { return a.pipeline.Stats().Failures },
		"ingest.malformed": func() int64 { return a.pipeline.Stats().Malformed },
	}
	if a.async != nil {
		counters["rcon.pending"] = func() int64 { return int64(a.async.Len()) }
	}
	return monitor.Dependencies{
		Round:    a.round,
		Registry: a.registry,
		Claims:   a.claims,
		Serial:   a.dispatcher,
		Queues: map[string]func() map[string]int{
			"dispatcher": a.dispatcher.QueueLengths,
			"storage":    a.worker.QueueLengths,
		},
		Counters: counters,
		Clock:    a.clock,
		Logger:   a.logger,
		File:     cfg.StatusFile,
		Interval: cfg.Interval,
	}
}

// Close drains outbound commands and flushes storage and telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.async != nil {
		drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		a.async.Drain(drainCtx)
		cancel()
	}
	if a.storage != nil {
		errs = append(errs, a.storage.Close())
	}
	if a.otel != nil {
		errs = append(errs, a.otel.Shutdown(ctx))
	}
	for _, f := range a.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// adminMatcher reports whether any platform id of a player is listed.
func adminMatcher(admins []string) func(core.IdentitySet) bool {
	return func(ids core.IdentitySet) bool {
		for _, p := range ids.Platforms() {
			if id, ok := ids.ID(p); ok && slices.Contains(admins, id) {
				return true
			}
		}
		return false
	}
}
