// Package vehicleclaims enforces vehicle claims made through squad names
// and the minimum size of locked infantry squads.
package vehicleclaims

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/squadwarden/warden/internal/cache"
	"github.com/squadwarden/warden/internal/claims"
	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/internal/escalation"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/internal/serial"
	"github.com/squadwarden/warden/pkg/core"
)

// Config holds the plugin settings.
type Config struct {
	Enabled             bool
	SecondWarningDelay  time.Duration
	KillDelay           time.Duration
	LockedSquadMinSize  int
	LockedSquadWarnWait time.Duration
	LockedSquadWarns    int
	LockedSquadDisband  time.Duration
	RescueCommand       string
	RescueTimeout       time.Duration
	Command             string
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		SecondWarningDelay:  10 * time.Second,
		KillDelay:           10 * time.Second,
		LockedSquadMinSize:  4,
		LockedSquadWarnWait: 60 * time.Second,
		LockedSquadWarns:    2,
		LockedSquadDisband:  30 * time.Second,
		RescueCommand:       "rescue",
		RescueTimeout:       300 * time.Second,
		Command:             "claims",
	}
}

// Recorder journals claim decisions and escalation transitions.
type Recorder interface {
	escalation.Recorder
	RecordClaim(c *core.ClaimRecord) error
}

// Dependencies are the collaborators of the plugin.
type Dependencies struct {
	Registry *claims.Registry
	Players  *cache.PlayerCache
	Control  rcon.Controller
	Clock    clock.Clock
	Serial   serial.Serializer
	Logger   *slog.Logger
	Recorder Recorder
	// RoundID returns the id of the current round.
	RoundID func() string
	// TeamByFaction maps a faction name to a team id.
	TeamByFaction func(name string) (int, bool)
	// IsAdmin reports whether a player may use admin commands.
	IsAdmin func(ids core.IdentitySet) bool
}

// Plugin wires the claim registry and two escalation engines to the bus.
type Plugin struct {
	cfg      Config
	enabled  bool
	registry *claims.Registry
	players  *cache.PlayerCache
	control  rcon.Controller
	clock    clock.Clock
	logger   *slog.Logger
	recorder Recorder
	roundID  func() string
	faction  func(string) (int, bool)
	isAdmin  func(core.IdentitySet) bool
	ctx      context.Context

	theft *escalation.Engine[string, theftCase]
	lock  *escalation.Engine[squadKey, lockCase]

	// lockStrikes holds the lock stage a squad had reached when it last
	// complied. It lives until the squad is gone or the round ends.
	lockStrikes map[squadKey]int
}

// New creates the plugin and its escalation engines.
func New(cfg Config, deps Dependencies) (*Plugin, error) {
	if deps.Registry == nil || deps.Players == nil || deps.Control == nil {
		return nil, fmt.Errorf("vehicle claims: registry, player cache and control channel are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Serial == nil {
		deps.Serial = serial.Inline{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RoundID == nil {
		deps.RoundID = func() string { return "" }
	}
	if deps.IsAdmin == nil {
		deps.IsAdmin = func(core.IdentitySet) bool { return false }
	}
	if deps.TeamByFaction == nil {
		deps.TeamByFaction = func(string) (int, bool) { return 0, false }
	}

	p := &Plugin{
		cfg:      cfg,
		enabled:  cfg.Enabled,
		registry: deps.Registry,
		players:  deps.Players,
		control:  deps.Control,
		clock:    deps.Clock,
		logger:   deps.Logger.With("plugin", "vehicle-claims"),
		recorder: deps.Recorder,
		roundID:  deps.RoundID,
		faction:  deps.TeamByFaction,
		isAdmin:  deps.IsAdmin,
		ctx:      context.Background(),

		lockStrikes: make(map[squadKey]int),
	}

	var err error
	if p.theft, err = p.newTheftEngine(deps); err != nil {
		return nil, fmt.Errorf("theft engine: %w", err)
	}
	if cfg.LockedSquadMinSize > 0 {
		if p.lock, err = p.newLockEngine(deps); err != nil {
			return nil, fmt.Errorf("lock engine: %w", err)
		}
	}

	p.registry.OnRescueExpired(p.onRescueExpired)
	return p, nil
}

// RegisterHandlers subscribes the plugin to the events it consumes.
func (p *Plugin) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(core.EventNewRound, p.handleNewRound, dispatcher.Named("claims:new-round"), dispatcher.Logged())
	d.Register(core.EventSquadCreated, p.handleSquadCreated, dispatcher.Named("claims:squad-created"), dispatcher.Logged())
	d.Register(core.EventSquadList, p.handleSquadList, dispatcher.Named("claims:squad-list"), dispatcher.Logged())
	d.Register(core.EventPossess, p.handlePossess, dispatcher.Named("claims:possess"), dispatcher.Logged())
	d.Register(core.EventUnpossess, p.handleUnpossess, dispatcher.Named("claims:unpossess"), dispatcher.Logged())
	d.Register(core.EventChatCommand, p.handleChatCommand, dispatcher.Named("claims:chat"), dispatcher.Logged())
}

// Enabled reports whether claims are being enforced.
func (p *Plugin) Enabled() bool {
	return p.enabled
}

// LiveCases returns the number of open theft and lock cases.
func (p *Plugin) LiveCases() (theft, lock int) {
	theft = p.theft.Len()
	if p.lock != nil {
		lock = p.lock.Len()
	}
	return theft, lock
}

func (p *Plugin) handleNewRound(ev core.Event) error {
	e, ok := ev.(*core.NewRoundEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}
	p.theft.Reset()
	p.resetLocks()
	p.registry.NewRound(p.roundID(), e.Teams)
	p.logger.Info("claims reset for new round", "layer", e.LayerID, "teams", len(e.Teams))
	return nil
}

func (p *Plugin) warn(playerID, msg string) {
	if playerID == "" {
		return
	}
	if err := p.control.Warn(p.ctx, playerID, msg); err != nil {
		p.logger.Error("warn failed", "player", playerID, "error", err)
	}
}

func (p *Plugin) broadcast(msg string) {
	if err := p.control.Broadcast(p.ctx, msg); err != nil {
		p.logger.Error("broadcast failed", "error", err)
	}
}

func (p *Plugin) disband(teamID, squadID int) {
	if err := p.control.DisbandSquad(p.ctx, teamID, squadID); err != nil {
		p.logger.Error("disband failed", "team", teamID, "squad", squadID, "error", err)
	}
}

func (p *Plugin) switchTeam(playerID string) {
	if err := p.control.SwitchTeam(p.ctx, playerID); err != nil {
		p.logger.Error("switch team failed", "player", playerID, "error", err)
	}
}

func (p *Plugin) recordClaim(rec core.ClaimRecord) {
	if p.recorder == nil {
		return
	}
	rec.RoundID = p.roundID()
	rec.Time = p.clock.Now()
	if rec.ID == "" {
		rec.ID = newID()
	}
	if err := p.recorder.RecordClaim(&rec); err != nil {
		p.logger.Error("failed to record claim", "squad", rec.SquadID, "error", err)
	}
}
