// Package autoswitch moves joining players to the team where most of their
// clan mates play.
package autoswitch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/squadwarden/warden/internal/cache"
	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/pkg/core"
)

// Config holds the plugin settings.
type Config struct {
	MaxTeamSize int
	OptOut      []string
}

// Plugin reacts to PLAYER_PREFIX events.
type Plugin struct {
	maxTeamSize int
	optOut      []string
	players     *cache.PlayerCache
	control     rcon.Controller
	logger      *slog.Logger
}

// New creates the plugin.
func New(cfg Config, players *cache.PlayerCache, control rcon.Controller, logger *slog.Logger) *Plugin {
	if cfg.MaxTeamSize <= 0 {
		cfg.MaxTeamSize = 55
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Plugin{
		maxTeamSize: cfg.MaxTeamSize,
		players:     players,
		control:     control,
		logger:      logger.With("plugin", "auto-switch"),
	}
	for _, o := range cfg.OptOut {
		if n := NormalizePrefix(o); n != "" {
			p.optOut = append(p.optOut, n)
		}
	}
	return p
}

// RegisterHandlers subscribes the plugin to the bus.
func (p *Plugin) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(core.EventPlayerPrefix, p.handlePlayerPrefix, dispatcher.Named("autoswitch:prefix"), dispatcher.Logged())
}

// NormalizePrefix lowercases a clan tag and drops everything but letters,
// digits and underscores.
func NormalizePrefix(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}

func (p *Plugin) handlePlayerPrefix(ev core.Event) error {
	e, ok := ev.(*core.PlayerPrefixEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}

	joining, ok := p.players.MarkSeen(e.PlayerID)
	if !ok {
		return nil
	}
	prefix := NormalizePrefix(joining.Prefix())
	if prefix == "" {
		return nil
	}
	if slices.Contains(p.optOut, prefix) {
		p.logger.Info("prefix is opted out", "prefix", joining.Prefix())
		return nil
	}

	var friends, players [3]int
	for _, pl := range p.players.Players() {
		if pl.TeamID != 1 && pl.TeamID != 2 {
			continue
		}
		players[pl.TeamID]++
		if pl.Identity.Primary() != e.PlayerID && NormalizePrefix(pl.Prefix()) == prefix {
			friends[pl.TeamID]++
		}
	}
	p.logger.Debug("friends on each team", "prefix", prefix, "team1", friends[1], "team2", friends[2])

	if friends[1] == friends[2] {
		return nil
	}
	friendTeam := 2
	if friends[1] > friends[2] {
		friendTeam = 1
	}
	if joining.TeamID == friendTeam {
		p.logger.Debug("already on friend team", "player", joining.Name)
		return nil
	}
	if players[friendTeam] > p.maxTeamSize {
		p.logger.Info("friend team is full", "player", joining.Name, "size", players[friendTeam])
		return nil
	}

	if err := p.control.SwitchTeam(context.Background(), e.PlayerID); err != nil {
		return fmt.Errorf("switching %s: %w", joining.Name, err)
	}
	p.logger.Info("switched player to friends", "player", joining.Name, "team", friendTeam)
	return nil
}
