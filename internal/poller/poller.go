// Package poller turns periodic server state queries into snapshot events.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/pkg/core"
)

// Publisher delivers events to the bus.
type Publisher interface {
	Publish(ev core.Event) error
}

// Poller queries a Lister every interval. It publishes NEW_ROUND when the
// current layer changes, then PLAYER_LIST_SNAPSHOT and SQUAD_LIST_SNAPSHOT.
// It implements suture.Service.
type Poller struct {
	lister   rcon.Lister
	pub      Publisher
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	layer string
}

// New creates a Poller.
func New(lister rcon.Lister, pub Publisher, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		lister:   lister,
		pub:      pub,
		interval: interval,
		clock:    clk,
		logger:   logger.With("component", "poller"),
	}
}

// Layer returns the last layer seen.
func (p *Poller) Layer() string {
	return p.layer
}

// Serve polls immediately and then every interval until ctx is done.
// Failed polls are logged; the next tick tries again.
func (p *Poller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil {
			p.logger.Warn("poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one query cycle. Each query failing on its own does not prevent
// the others; errors are joined.
func (p *Poller) Poll(ctx context.Context) error {
	var errs []error

	if r, err := p.lister.CurrentRound(ctx); err != nil {
		errs = append(errs, fmt.Errorf("current round: %w", err))
	} else if r != nil && r.LayerID != "" && r.LayerID != p.layer {
		p.layer = r.LayerID
		if r.Time.IsZero() {
			r.Time = p.clock.Now()
		}
		p.logger.Info("layer changed", "layer", r.LayerID)
		if err := p.pub.Publish(r); err != nil {
			errs = append(errs, err)
		}
	}

	// Snapshots are stamped when the query is sent. Squads created while
	// the answer is in flight are newer than the list and must survive it.
	asOf := p.clock.Now()
	if players, err := p.lister.ListPlayers(ctx); err != nil {
		errs = append(errs, fmt.Errorf("list players: %w", err))
	} else if err := p.pub.Publish(&core.PlayerListSnapshot{Time: asOf, Players: players}); err != nil {
		errs = append(errs, err)
	}

	asOf = p.clock.Now()
	if squads, err := p.lister.ListSquads(ctx); err != nil {
		errs = append(errs, fmt.Errorf("list squads: %w", err))
	} else if err := p.pub.Publish(&core.SquadListSnapshot{Time: asOf, Squads: squads}); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (p *Poller) String() string {
	return "snapshot-poller"
}
