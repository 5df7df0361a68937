package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/parser"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/pkg/core"
)

const defaultSettle = 5 * time.Minute

type replayOptions struct {
	LogFile string
	// SeedFile describes the round layout and roster, which the live
	// service learns from server polls rather than the log.
	SeedFile string
	// Settle is how far the clock runs on after the last line.
	Settle time.Duration
}

// replaySeed is the JSON layout of the --round file.
type replaySeed struct {
	Layer   string       `json:"layer"`
	Teams   []seedTeam   `json:"teams"`
	Players []seedPlayer `json:"players"`
}

type seedTeam struct {
	ID       int           `json:"id"`
	Faction  string        `json:"faction"`
	Unit     string        `json:"unit"`
	Vehicles []seedVehicle `json:"vehicles"`
}

type seedVehicle struct {
	Name       string   `json:"name"`
	Count      int      `json:"count"`
	ClassNames []string `json:"classNames"`
}

type seedPlayer struct {
	IDs     string `json:"ids"`
	Name    string `json:"name"`
	TeamID  int    `json:"teamId"`
	SquadID int    `json:"squadId"`
	Leader  bool   `json:"leader"`
}

func loadReplaySeed(path string) (*replaySeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading round file: %w", err)
	}
	var seed replaySeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decoding round file: %w", err)
	}
	return &seed, nil
}

func (s *replaySeed) events(at time.Time) []core.Event {
	round := &core.NewRoundEvent{Time: at, LayerID: s.Layer}
	for _, t := range s.Teams {
		roster := core.TeamRoster{ID: t.ID, Faction: t.Faction, UnitID: t.Unit}
		for _, v := range t.Vehicles {
			roster.Vehicles = append(roster.Vehicles, core.VehicleSpec{Name: v.Name, Count: v.Count, ClassNames: v.ClassNames})
		}
		round.Teams = append(round.Teams, roster)
	}

	players := &core.PlayerListSnapshot{Time: at}
	for _, p := range s.Players {
		players.Players = append(players.Players, core.PlayerInfo{
			Identity: core.ParseIdentitySet(p.IDs),
			Name:     p.Name,
			TeamID:   p.TeamID,
			SquadID:  p.SquadID,
			IsLeader: p.Leader,
		})
	}
	return []core.Event{round, players}
}

// firstTimestamp returns the time of the first timestamped event in r.
func firstTimestamp(r io.Reader) (time.Time, error) {
	p := parser.NewParser(nil)
	p.SetClock(clock.NewFake(time.Time{}))

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		ev, err := p.ParseLine(sc.Text())
		if err != nil || ev == nil || ev.At().IsZero() {
			continue
		}
		return ev.At(), nil
	}
	if err := sc.Err(); err != nil {
		return time.Time{}, err
	}
	return time.Time{}, errors.New("no timestamped events in log")
}

// runReplay feeds a finished log through the engine on a clock that follows
// the log timestamps, and prints every command that would have been sent.
func runReplay(ctx context.Context, opts replayOptions, out io.Writer) error {
	f, err := os.Open(opts.LogFile)
	if err != nil {
		return err
	}
	defer f.Close()

	start, err := firstTimestamp(f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var seed *replaySeed
	if opts.SeedFile != "" {
		if seed, err = loadReplaySeed(opts.SeedFile); err != nil {
			return err
		}
	}

	fake := clock.NewFake(start)
	recorder := rcon.NewRecorder()
	endpoint := rcon.ActionFunc(func(ctx context.Context, act core.Action) error {
		fmt.Fprintf(out, "%s  %s\n", fake.Now().UTC().Format(time.RFC3339), rcon.Command(act))
		return recorder.ActionFunc(ctx, act)
	})

	a, err := newApp(ctx, appOptions{Endpoint: endpoint, Clock: fake, Synchronous: true})
	if err != nil {
		return err
	}

	a.pipeline.Observe(func(ev core.Event) {
		if at, now := ev.At(), fake.Now(); at.After(now) {
			fake.Advance(at.Sub(now))
		}
	})

	if seed != nil {
		for _, ev := range seed.events(start) {
			if err := a.pipeline.Publish(ev); err != nil {
				a.logger.Warn("Seed event failed", "type", ev.Type(), "error", err)
			}
		}
	}

	replayErr := a.pipeline.Replay(ctx, f)
	fake.Advance(opts.Settle)

	stats := a.pipeline.Stats()
	fmt.Fprintf(out, "\n%d lines, %d events, %d commands (%d warnings, %d team switches, %d disbands)\n",
		stats.Lines, stats.Events, len(recorder.Actions()),
		len(recorder.Of(core.ActionWarn)),
		len(recorder.Of(core.ActionSwitchTeam)),
		len(recorder.Of(core.ActionDisbandSquad)))

	return errors.Join(replayErr, a.Close(context.Background()))
}
