// Package balance moves admin-selected players to the other team once the
// round ends.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/squadwarden/warden/internal/cache"
	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/internal/serial"
	"github.com/squadwarden/warden/internal/util"
	"github.com/squadwarden/warden/pkg/core"
)

const (
	msgMarked    = "Balancing:\nYou will be team-switched after this round."
	msgUnmarked  = "Balancing:\nYou are no longer marked for team-switch."
	msgBroadcast = "Teams are being balanced."
	msgHelp      = "!balance commands:\n clan XXX\n player XXX\n squad N\n clear\n clear XXX\n list\n"
)

// Config holds the plugin settings.
type Config struct {
	Command string
	Delay   time.Duration
}

// Plugin keeps the list of marked players.
type Plugin struct {
	cfg     Config
	players *cache.PlayerCache
	control rcon.Controller
	clock   clock.Clock
	serial  serial.Serializer
	logger  *slog.Logger
	ctx     context.Context

	marked []cache.Player
	timer  clock.Timer
}

// New creates the plugin.
func New(cfg Config, players *cache.PlayerCache, control rcon.Controller, clk clock.Clock, s serial.Serializer, logger *slog.Logger) *Plugin {
	if cfg.Command == "" {
		cfg.Command = "balance"
	}
	if clk == nil {
		clk = clock.Real()
	}
	if s == nil {
		s = serial.Inline{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{
		cfg:     cfg,
		players: players,
		control: control,
		clock:   clk,
		serial:  s,
		logger:  logger.With("plugin", "balance"),
		ctx:     context.Background(),
	}
}

// RegisterHandlers subscribes the plugin to the bus.
func (p *Plugin) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(core.EventChatCommand, p.handleChatCommand, dispatcher.Named("balance:chat"), dispatcher.Logged())
	d.Register(core.EventRoundEnded, p.handleRoundEnded, dispatcher.Named("balance:round-ended"), dispatcher.Logged())
}

// Marked returns the names of the marked players.
func (p *Plugin) Marked() []string {
	out := make([]string, 0, len(p.marked))
	for _, m := range p.marked {
		out = append(out, m.Name)
	}
	return out
}

func (p *Plugin) warn(playerID, msg string) {
	if err := p.control.Warn(p.ctx, playerID, msg); err != nil {
		p.logger.Error("warn failed", "player", playerID, "error", err)
	}
}

func (p *Plugin) handleChatCommand(ev core.Event) error {
	e, ok := ev.(*core.ChatCommandEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}
	if e.Command != p.cfg.Command || e.Channel != core.ChatAdmin || !e.Speaker.Valid() {
		return nil
	}

	admin, _ := p.players.Lookup(e.Speaker)
	admin.Identity = e.Speaker
	words := strings.Fields(strings.ToLower(e.Message))
	verb, arg := "", ""
	if len(words) > 0 {
		verb = words[0]
	}
	if len(words) > 1 {
		arg = words[1]
	}

	switch {
	case verb == "clan" && arg != "":
		p.markClan(arg, admin)
	case verb == "squad" && arg != "":
		squadID, err := strconv.Atoi(arg)
		if err != nil {
			p.warn(admin.Identity.Primary(), msgHelp)
			return nil
		}
		p.markSquad(squadID, admin)
	case verb == "player" && arg != "":
		p.markPlayer(arg, admin)
	case verb == "clear" && arg != "":
		p.clearPlayer(arg, admin)
	case verb == "clear":
		p.clearAll(admin)
	case verb == "list":
		p.showStatus(admin)
	default:
		p.warn(admin.Identity.Primary(), msgHelp)
	}
	return nil
}

func (p *Plugin) showStatus(admin cache.Player) {
	var b strings.Builder
	fmt.Fprintf(&b, "%d players marked for balance:", len(p.marked))
	for _, m := range p.marked {
		b.WriteString("\n")
		b.WriteString(m.Name)
	}
	p.warn(admin.Identity.Primary(), b.String())
}

func (p *Plugin) mark(players []cache.Player, admin cache.Player) {
	for _, pl := range players {
		if !p.isMarked(pl) {
			p.marked = append(p.marked, pl)
		}
		p.warn(pl.Identity.Primary(), msgMarked)
	}
	p.logger.Info("players marked", "count", len(players), "admin", admin.Name)
	p.showStatus(admin)
}

func (p *Plugin) isMarked(pl cache.Player) bool {
	for _, m := range p.marked {
		if m.Identity.Primary() == pl.Identity.Primary() {
			return true
		}
	}
	return false
}

// markClan marks the members of the clan on the team where it has more
// players. The tag may be preceded by up to three characters and must be
// a separate word.
func (p *Plugin) markClan(name string, admin cache.Player) {
	re, err := regexp.Compile(`(?i)^.{0,3}\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		p.warn(admin.Identity.Primary(), msgHelp)
		return
	}

	var teams [2][]cache.Player
	for _, pl := range p.players.Players() {
		if (pl.TeamID == 1 || pl.TeamID == 2) && re.MatchString(pl.Name) {
			teams[pl.TeamID-1] = append(teams[pl.TeamID-1], pl)
		}
	}
	if len(teams[0]) == len(teams[1]) {
		p.warn(admin.Identity.Primary(),
			fmt.Sprintf("Balancing error:\nThere are %d %q players on both sides.", len(teams[0]), name))
		return
	}
	if len(teams[0]) > len(teams[1]) {
		p.mark(teams[0], admin)
	} else {
		p.mark(teams[1], admin)
	}
}

func (p *Plugin) markSquad(squadID int, admin cache.Player) {
	var found []cache.Player
	for _, pl := range p.players.Players() {
		if pl.TeamID == admin.TeamID && pl.SquadID == squadID {
			found = append(found, pl)
		}
	}
	p.mark(found, admin)
}

func (p *Plugin) matchName(name string, from []cache.Player) []cache.Player {
	var found []cache.Player
	for _, pl := range from {
		if strings.Contains(strings.ToLower(pl.Name), name) {
			found = append(found, pl)
		}
	}
	return found
}

func (p *Plugin) markPlayer(name string, admin cache.Player) {
	found := p.matchName(name, p.players.Players())
	if len(found) != 1 {
		p.warn(admin.Identity.Primary(),
			fmt.Sprintf("Balancing error:\nName %q matched %d players.", name, len(found)))
		return
	}
	p.mark(found, admin)
}

func (p *Plugin) clearPlayer(name string, admin cache.Player) {
	found := p.matchName(name, p.marked)
	if len(found) != 1 {
		p.warn(admin.Identity.Primary(),
			fmt.Sprintf("Balancing error:\nName %q matched %d marked players.", name, len(found)))
		return
	}
	id := found[0].Identity.Primary()
	for i, m := range p.marked {
		if m.Identity.Primary() == id {
			p.marked = append(p.marked[:i], p.marked[i+1:]...)
			break
		}
	}
	p.warn(id, msgUnmarked)
}

func (p *Plugin) clearAll(admin cache.Player) {
	for _, m := range p.marked {
		p.warn(m.Identity.Primary(), msgUnmarked)
	}
	p.warn(admin.Identity.Primary(), fmt.Sprintf("Balancing:\nCleared all %d players off list", len(p.marked)))
	p.marked = nil
}

func (p *Plugin) handleRoundEnded(ev core.Event) error {
	if len(p.marked) == 0 {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = p.clock.AfterFunc(p.cfg.Delay, func() { p.serial.Do(p.movePlayers) })

	msg := fmt.Sprintf("Balancing:\nYou will be team-switched in %d seconds.", util.Seconds(p.cfg.Delay))
	for _, m := range p.marked {
		p.warn(m.Identity.Primary(), msg)
	}
	return nil
}

func (p *Plugin) movePlayers() {
	p.timer = nil
	if err := p.control.Broadcast(p.ctx, msgBroadcast); err != nil {
		p.logger.Error("broadcast failed", "error", err)
	}
	for _, m := range p.marked {
		if err := p.control.SwitchTeam(p.ctx, m.Identity.Primary()); err != nil {
			p.logger.Error("switch team failed", "player", m.Name, "error", err)
		}
	}
	p.logger.Info("teams balanced", "moved", len(p.marked))
	p.marked = nil
}
