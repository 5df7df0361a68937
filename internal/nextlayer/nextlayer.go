// Package nextlayer announces the queued next layer on request and on a
// fixed interval during the round.
package nextlayer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/internal/serial"
	"github.com/squadwarden/warden/pkg/core"
)

// Config holds the plugin settings. A zero BroadcastInterval disables the
// periodic broadcast.
type Config struct {
	Command           string
	BroadcastInterval time.Duration
}

// Plugin owns the periodic broadcast timer.
type Plugin struct {
	cfg     Config
	next    func() string
	control rcon.Controller
	clock   clock.Clock
	serial  serial.Serializer
	logger  *slog.Logger

	timer clock.Timer
}

// New creates the plugin. next returns the queued next layer line.
func New(cfg Config, next func() string, control rcon.Controller, clk clock.Clock, s serial.Serializer, logger *slog.Logger) *Plugin {
	if cfg.Command == "" {
		cfg.Command = "nextlayer"
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
		next:    next,
		control: control,
		clock:   clk,
		serial:  s,
		logger:  logger.With("plugin", "next-layer"),
	}
}

// RegisterHandlers subscribes the plugin to the bus.
func (p *Plugin) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(core.EventChatCommand, p.handleChatCommand, dispatcher.Named("nextlayer:chat"))
	d.Register(core.EventNewRound, p.handleNewRound, dispatcher.Named("nextlayer:new-round"))
	d.Register(core.EventRoundEnded, p.handleRoundEnded, dispatcher.Named("nextlayer:round-ended"))
}

var (
	layerPattern = regexp.MustCompile(`^\S+`)
	teamPattern  = regexp.MustCompile(`^(\w+)\+?(\w+)?$`)
	unitPattern  = regexp.MustCompile(`^(\w+?)_(\w+?)_(\w+)$`)
)

// Describe renders a rotation line such as
// "Mutaha_Invasion_v1 ADF+Mechanized INS+LightInfantry" as announcement
// text. It returns "" for an empty line.
func Describe(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	text := "Next layer is " + layerPattern.FindString(fields[0])
	if len(fields) < 3 {
		return text
	}
	return text + "\n" + teamText(fields[1]) + " vs " + teamText(fields[2])
}

// teamText renders "ADF+Mechanized" as "ADF Mechanized" and a unit object
// name "USA_S_CombinedArms" as "USA CombinedArms".
func teamText(s string) string {
	if m := unitPattern.FindStringSubmatch(s); m != nil {
		return m[1] + " " + m[3]
	}
	if m := teamPattern.FindStringSubmatch(s); m != nil && m[2] != "" {
		return m[1] + " " + m[2]
	}
	return s
}

func (p *Plugin) announce(e *core.ChatCommandEvent) {
	text := Describe(p.next())
	if text == "" {
		p.logger.Debug("next layer not known yet")
		return
	}

	var err error
	if e == nil || e.Channel == core.ChatAdmin {
		err = p.control.Broadcast(context.Background(), text)
	} else {
		err = p.control.Warn(context.Background(), e.Speaker.Primary(), text)
	}
	if err != nil {
		p.logger.Error("next layer announcement failed", "error", err)
	}
}

func (p *Plugin) handleChatCommand(ev core.Event) error {
	e, ok := ev.(*core.ChatCommandEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}
	if e.Command != p.cfg.Command || !e.Speaker.Valid() {
		return nil
	}
	p.announce(e)
	return nil
}

// Start schedules the first broadcast on the next interval boundary counted
// from roundStart.
func (p *Plugin) Start(roundStart time.Time) {
	p.Stop()
	if p.cfg.BroadcastInterval <= 0 {
		return
	}
	now := p.clock.Now()
	at := roundStart
	for !at.After(now) {
		at = at.Add(p.cfg.BroadcastInterval)
	}
	p.logger.Debug("first next layer broadcast scheduled", "in", at.Sub(now))
	p.schedule(at.Sub(now))
}

// Stop cancels the periodic broadcast.
func (p *Plugin) Stop() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Plugin) schedule(d time.Duration) {
	var t clock.Timer
	t = p.clock.AfterFunc(d, func() {
		p.serial.Do(func() {
			if p.timer != t {
				return
			}
			p.announce(nil)
			p.schedule(p.cfg.BroadcastInterval)
		})
	})
	p.timer = t
}

func (p *Plugin) handleNewRound(ev core.Event) error {
	p.Start(ev.At())
	return nil
}

func (p *Plugin) handleRoundEnded(core.Event) error {
	p.Stop()
	return nil
}
