// Package monitor periodically writes a JSON status file describing the
// current round, the claims and the pressure on internal queues.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/squadwarden/warden/internal/claims"
	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/round"
	"github.com/squadwarden/warden/internal/serial"
)

// ClaimsPlugin is the part of the vehicle claims plugin the monitor reads.
type ClaimsPlugin interface {
	Enabled() bool
	LiveCases() (theft, lock int)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Round    *round.Context
	Registry *claims.Registry
	Claims   ClaimsPlugin
	// Serial guards reads of state owned by the event handlers.
	Serial serial.Serializer
	// Queues report named queue lengths, such as dispatcher buffers and
	// pending storage writes. Keys are prefixed with the map key.
	Queues map[string]func() map[string]int
	// Counters report single values, such as ingest statistics.
	Counters map[string]func() int64
	Clock    clock.Clock
	Logger   *slog.Logger
	File     string
	Interval time.Duration
}

// Status is the content of the status file.
type Status struct {
	Time      time.Time        `json:"time"`
	RoundID   string           `json:"roundId"`
	Layer     string           `json:"layer"`
	StartedAt time.Time        `json:"startedAt"`
	NextLayer string           `json:"nextLayer,omitempty"`
	Claims    ClaimsStatus     `json:"claims"`
	Queues    map[string]int   `json:"queues"`
	Counters  map[string]int64 `json:"counters"`
}

// ClaimsStatus summarizes the claim registry.
type ClaimsStatus struct {
	Enabled    bool         `json:"enabled"`
	TheftCases int          `json:"theftCases"`
	LockCases  int          `json:"lockCases"`
	Teams      []TeamClaims `json:"teams"`
}

// TeamClaims lists the claimed vehicles of one team.
type TeamClaims struct {
	TeamID   int            `json:"teamId"`
	Faction  string         `json:"faction"`
	Vehicles []VehicleClaim `json:"vehicles"`
}

// VehicleClaim is one claimable vehicle type and its claimants.
type VehicleClaim struct {
	Name      string `json:"name"`
	Count     int    `json:"count"`
	Claimants []int  `json:"claimants"`
	Rescuer   string `json:"rescuer,omitempty"`
}

// Service manages status monitoring. It implements suture.Service.
type Service struct {
	deps   Dependencies
	logger *slog.Logger

	mu        sync.RWMutex
	isRunning bool
	last      Status
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Serial == nil {
		deps.Serial = serial.Inline{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	return &Service{deps: deps, logger: deps.Logger.With("component", "monitor")}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Last returns the most recently written status.
func (s *Service) Last() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// GetStatus collects the current status.
func (s *Service) GetStatus() Status {
	st := Status{
		Time:     s.deps.Clock.Now().UTC(),
		Queues:   make(map[string]int),
		Counters: make(map[string]int64),
	}

	if s.deps.Round != nil {
		r := s.deps.Round.Current()
		st.RoundID, st.Layer, st.StartedAt = r.ID, r.LayerID, r.StartedAt
		st.NextLayer = s.deps.Round.NextLayer()
	}

	s.deps.Serial.Do(func() {
		if s.deps.Claims != nil {
			st.Claims.Enabled = s.deps.Claims.Enabled()
			st.Claims.TheftCases, st.Claims.LockCases = s.deps.Claims.LiveCases()
		}
		if s.deps.Registry != nil {
			st.Claims.Teams = teamClaims(s.deps.Registry)
		}
	})

	for prefix, fn := range s.deps.Queues {
		for name, n := range fn() {
			st.Queues[prefix+"."+name] = n
		}
	}
	for name, fn := range s.deps.Counters {
		st.Counters[name] = fn()
	}
	return st
}

func teamClaims(r *claims.Registry) []TeamClaims {
	var out []TeamClaims
	for _, id := range r.Teams() {
		tc := TeamClaims{TeamID: id, Faction: r.Faction(id)}
		for _, v := range r.Vehicles(id) {
			vc := VehicleClaim{Name: v.Name, Count: v.Count, Claimants: v.Claimants}
			if v.Rescue != nil {
				vc.Rescuer = v.Rescue.Rescuer
			}
			tc.Vehicles = append(tc.Vehicles, vc)
		}
		out = append(out, tc)
	}
	return out
}

// WriteStatus writes st to the status file, replacing it atomically.
func (s *Service) WriteStatus(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	dir := filepath.Dir(s.deps.File)
	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("creating status file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing status file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.deps.File); err != nil {
		return fmt.Errorf("replacing status file: %w", err)
	}

	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
	return nil
}
