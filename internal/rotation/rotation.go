// Package rotation picks the next layer from a candidate file while keeping
// recently played maps and factions out of the rotation.
package rotation

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/pkg/core"
)

// Config holds the plugin settings.
type Config struct {
	File           string
	MapRepeat      int
	FactionRepeat  int
	InvasionRepeat int
	MinPlayers     int
	Command        string
}

// Candidate is one parsed line of the rotation file.
type Candidate struct {
	Line     string
	Map      string
	Mode     string
	Version  string
	Factions [2]string
}

var (
	// "Mutaha_Invasion_v1 ADF+Mechanized INS+LightInfantry"
	candidatePattern = regexp.MustCompile(`^(\w+)_(\w+)_(\w+) (\w+)\+?(\w+)? (\w+)\+?(\w+)?$`)
	// "Narva_RAAS_v1 RGF_LO_Motorized USA_S_CombinedArms"
	playedPattern = regexp.MustCompile(`^(\w+)_(\w+)_(\w+) (\w+?)_[A-Z]+_([-\w]+) (\w+?)_[A-Z]+_([-\w]+)$`)
)

// ParseCandidate parses a rotation line.
func ParseCandidate(line string) (Candidate, error) {
	line = strings.TrimSpace(line)
	if len(strings.Fields(line)) > 3 {
		return Candidate{}, fmt.Errorf("too many fields in %q", line)
	}
	m := candidatePattern.FindStringSubmatch(line)
	if m == nil {
		return Candidate{}, fmt.Errorf("malformed layer line %q", line)
	}
	return Candidate{
		Line:     line,
		Map:      m[1],
		Mode:     m[2],
		Version:  m[3],
		Factions: [2]string{m[4], m[6]},
	}, nil
}

// history keeps the most recent values up to a fixed size.
type history[T comparable] struct {
	size   int
	values []T
}

func (h *history[T]) push(v ...T) {
	h.values = append(h.values, v...)
	if over := len(h.values) - h.size; over > 0 {
		h.values = slices.Delete(h.values, 0, over)
	}
}

func (h *history[T]) contains(v T) bool {
	return slices.Contains(h.values, v)
}

// Plugin holds the candidate list and play history.
type Plugin struct {
	cfg     Config
	control rcon.Controller
	players func() int
	setNext func(string)
	rand    *rand.Rand
	logger  *slog.Logger

	layers   []string
	maps     history[string]
	factions history[string]
	invasion history[bool]
}

// New creates the plugin. players reports the current player count and
// setNext records the chosen layer; src seeds the random choice and may be
// nil.
func New(cfg Config, control rcon.Controller, players func() int, setNext func(string), src rand.Source, logger *slog.Logger) *Plugin {
	if cfg.Command == "" {
		cfg.Command = "newnextlayer"
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if logger == nil {
		logger = slog.Default()
	}
	if setNext == nil {
		setNext = func(string) {}
	}
	return &Plugin{
		cfg:      cfg,
		control:  control,
		players:  players,
		setNext:  setNext,
		rand:     rand.New(src),
		logger:   logger.With("plugin", "rotation"),
		maps:     history[string]{size: cfg.MapRepeat},
		factions: history[string]{size: cfg.FactionRepeat},
		invasion: history[bool]{size: cfg.InvasionRepeat},
	}
}

// RegisterHandlers subscribes the plugin to the bus.
func (p *Plugin) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(core.EventNewRound, p.handleNewRound, dispatcher.Named("rotation:new-round"), dispatcher.Logged())
	d.Register(core.EventChatCommand, p.handleChatCommand, dispatcher.Named("rotation:chat"), dispatcher.Logged())
}

// Load reads the candidate file. Blank lines and lines starting with "#"
// or "//" are skipped.
func (p *Plugin) Load() error {
	f, err := os.Open(p.cfg.File)
	if err != nil {
		return fmt.Errorf("opening layer rotation: %w", err)
	}
	defer f.Close()

	var layers []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		layers = append(layers, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading layer rotation: %w", err)
	}

	p.layers = layers
	p.logger.Info("layer rotation loaded", "file", p.cfg.File, "layers", len(layers))
	return nil
}

// Layers returns the loaded candidate lines.
func (p *Plugin) Layers() []string {
	return slices.Clone(p.layers)
}

// MarkPlayed adds the layer to the history when enough players are on.
func (p *Plugin) MarkPlayed(layerID string, units [2]string) {
	if n := p.players(); n < p.cfg.MinPlayers {
		p.logger.Debug("too few players, not marking layer as played", "players", n)
		return
	}
	line := fmt.Sprintf("%s %s %s", layerID, units[0], units[1])
	m := playedPattern.FindStringSubmatch(line)
	if m == nil {
		p.logger.Warn("current layer not understood", "line", line)
		return
	}
	p.maps.push(m[1])
	p.factions.push(m[4], m[6])
	p.invasion.push(m[2] == "Invasion")
	p.logger.Debug("layer marked as played", "map", m[1], "mode", m[2], "factions", []string{m[4], m[6]})
}

func (p *Plugin) acceptable(c Candidate) bool {
	return !p.maps.contains(c.Map) &&
		!p.factions.contains(c.Factions[0]) &&
		!p.factions.contains(c.Factions[1]) &&
		!(c.Mode == "Invasion" && p.invasion.contains(true))
}

// Pick draws random candidates until one passes the history filters.
func (p *Plugin) Pick() (string, bool) {
	pool := slices.Clone(p.layers)
	for len(pool) > 0 {
		i := p.rand.IntN(len(pool))
		line := pool[i]
		pool = slices.Delete(pool, i, i+1)

		c, err := ParseCandidate(line)
		if err != nil {
			p.logger.Warn("skipping layer line", "error", err)
			continue
		}
		if p.acceptable(c) {
			return c.Line, true
		}
	}
	return "", false
}

// SetNext picks a layer and queues it on the server.
func (p *Plugin) SetNext(ctx context.Context) (string, bool) {
	line, ok := p.Pick()
	if !ok {
		p.logger.Warn("no acceptable layer found, next layer unchanged")
		return "", false
	}
	if err := p.control.SetNextLayer(ctx, line); err != nil {
		p.logger.Error("setting next layer failed", "layer", line, "error", err)
		return "", false
	}
	p.setNext(line)
	p.logger.Info("next layer set", "layer", line)
	return line, true
}

func (p *Plugin) handleNewRound(ev core.Event) error {
	e, ok := ev.(*core.NewRoundEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}
	var units [2]string
	for _, t := range e.Teams {
		if t.ID == 1 || t.ID == 2 {
			units[t.ID-1] = t.UnitID
		}
	}
	p.MarkPlayed(e.LayerID, units)
	p.SetNext(context.Background())
	return nil
}

func (p *Plugin) handleChatCommand(ev core.Event) error {
	e, ok := ev.(*core.ChatCommandEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", ev)
	}
	if e.Command != p.cfg.Command || e.Channel != core.ChatAdmin || !e.Speaker.Valid() {
		return nil
	}

	msg := "No suitable layer found. No change."
	if line, ok := p.SetNext(context.Background()); ok {
		msg = "New next layer: " + line
	}
	if err := p.control.Warn(context.Background(), e.Speaker.Primary(), msg); err != nil {
		return fmt.Errorf("replying to %s: %w", e.SpeakerName, err)
	}
	return nil
}
