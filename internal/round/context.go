package round

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/squadwarden/warden/pkg/core"
)

// NoLayer is reported before the first round is known.
const NoLayer = "No layer loaded"

// Context holds the current round and the queued next layer.
type Context struct {
	mu        sync.RWMutex
	round     *core.Round
	nextLayer string
}

// NewContext creates a Context with a placeholder round.
func NewContext() *Context {
	return &Context{
		round: &core.Round{LayerID: NoLayer},
	}
}

// Start begins a new round for ev and returns it.
func (c *Context) Start(ev *core.NewRoundEvent) *core.Round {
	r := &core.Round{
		ID:        uuid.NewString(),
		LayerID:   ev.LayerID,
		Teams:     append([]core.TeamRoster(nil), ev.Teams...),
		StartedAt: ev.Time,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.round = r
	return r
}

// End stamps the current round as ended and returns it.
func (c *Context) End(at time.Time) *core.Round {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.round.EndedAt.IsZero() {
		c.round.EndedAt = at
	}
	return c.round
}

// Current returns a copy of the current round.
func (c *Context) Current() core.Round {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.round
}

// ID returns the current round id, "" before the first round.
func (c *Context) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.round.ID
}

// Team returns the roster of team id in the current round.
func (c *Context) Team(id int) (core.TeamRoster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.round.Teams {
		if t.ID == id {
			return t, true
		}
	}
	return core.TeamRoster{}, false
}

// TeamByFaction finds the team whose faction matches name.
func (c *Context) TeamByFaction(name string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.round.Teams {
		if t.Faction != "" && t.Faction == name {
			return t.ID, true
		}
	}
	return 0, false
}

func (c *Context) NextLayer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextLayer
}

func (c *Context) SetNextLayer(layer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextLayer = layer
}

// LogAttrs provides the round attributes added to every log record.
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.round.ID == "" {
		return nil
	}
	return []slog.Attr{
		slog.String("round", c.round.ID),
		slog.String("layer", c.round.LayerID),
	}
}
