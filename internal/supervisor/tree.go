// Package supervisor runs the long-lived services under a suture tree.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64
	// FailureBackoff is the duration to wait when threshold is exceeded.
	FailureBackoff time.Duration
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's stock values.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is organized into two layers:
//   - ingest: log tailer, snapshot poller, rotation file watcher
//   - services: outbound control queue, status monitor
//
// A crash loop in the ingest layer does not stop queued control requests
// from being delivered.
type Tree struct {
	root     *suture.Supervisor
	ingest   *suture.Supervisor
	services *suture.Supervisor
	logger   *slog.Logger
	config   TreeConfig
}

// NewTree creates the tree. Zero config values take the defaults.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	handler := &sutureslog.Handler{Logger: logger}

	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("warden", rootSpec)
	ingest := suture.New("ingest-layer", childSpec)
	services := suture.New("services-layer", childSpec)
	root.Add(ingest)
	root.Add(services)

	return &Tree{
		root:     root,
		ingest:   ingest,
		services: services,
		logger:   logger,
		config:   config,
	}
}

// AddIngestService adds a service feeding events to the bus.
func (t *Tree) AddIngestService(svc suture.Service) suture.ServiceToken {
	return t.ingest.Add(svc)
}

// AddService adds a supporting service.
func (t *Tree) AddService(svc suture.Service) suture.ServiceToken {
	return t.services.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine and reports its result.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// RemoveAndWait stops a service of either layer and waits for it to
// terminate.
func (t *Tree) RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error {
	err := t.services.RemoveAndWait(token, timeout)
	if errors.Is(err, suture.ErrWrongSupervisor) {
		return t.ingest.RemoveAndWait(token, timeout)
	}
	return err
}
