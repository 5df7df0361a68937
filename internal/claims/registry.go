// Package claims tracks which squad holds which vehicle type, per team, for
// the current round.
//
// The Registry is an arena rebuilt wholesale by NewRound. Callers address
// teams, vehicles and squads by team ID, canonical vehicle name and squad
// number, and every query returns copies, so nothing outlives the round it
// came from. Methods must be called from the serialization point.
package claims

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/serial"
	"github.com/squadwarden/warden/internal/util"
	"github.com/squadwarden/warden/pkg/core"
)

var (
	ErrUnknownTeam    = errors.New("unknown team")
	ErrUnknownVehicle = errors.New("unknown vehicle")
)

// CapacityError is returned when every slot of a vehicle type is claimed.
type CapacityError struct {
	Vehicle string
	Count   int
	Holders []int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s is already claimed by squad %s", e.Vehicle, util.JoinInts(e.Holders, " & "))
}

// Vehicle is a snapshot of a claimable vehicle type.
type Vehicle struct {
	Name        string
	DisplayName string
	Count       int
	ClassNames  []string
	Claimants   []int
	Rescue      *Rescue
}

// Rescue is an active rescue override.
type Rescue struct {
	Granter string
	Rescuer string
	Expires time.Time
}

// Squad is the registry's view of a squad.
type Squad struct {
	ID      int
	Name    string
	Creator string
	// CreatedAt is zero for squads first seen in a snapshot.
	CreatedAt   time.Time
	Size        int
	Locked      bool
	LockedSince time.Time
}

// PrunedClaim describes a claim removed by pruning.
type PrunedClaim struct {
	SquadID int
	Vehicle string
}

type vehicle struct {
	name       string
	display    string
	count      int
	classNames []string
	claimedBy  map[int]time.Time
	rescue     *rescue
}

type rescue struct {
	granter string
	rescuer string
	expires time.Time
	timer   clock.Timer
}

type team struct {
	id       int
	faction  string
	unitID   string
	vehicles map[string]*vehicle
	// names holds the live vehicle names, longest first.
	names  []string
	squads map[int]*Squad
}

// Options configures a Registry.
type Options struct {
	Catalog   *Catalog
	Clock     clock.Clock
	Serial    serial.Serializer
	Logger    *slog.Logger
	// ClockSkew widens the window in which a squad missing from a polled
	// list is still considered newer than the list.
	ClockSkew time.Duration
}

// Registry is the per-round claim arena.
type Registry struct {
	catalog *Catalog
	clock   clock.Clock
	serial  serial.Serializer
	logger  *slog.Logger
	skew    time.Duration

	roundID string
	teams   map[int]*team

	onRescueExpired func(RescueExpiry)
}

// New creates an empty Registry. Until NewRound is called every team lookup
// fails with ErrUnknownTeam.
func New(opts Options) *Registry {
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Serial == nil {
		opts.Serial = serial.Inline{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		catalog: opts.Catalog,
		clock:   opts.Clock,
		serial:  opts.Serial,
		logger:  opts.Logger,
		skew:    max(opts.ClockSkew, 0),
		teams:   make(map[int]*team),
	}
}

// Catalog returns the naming tables in use.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// RoundID returns the id passed to the last NewRound.
func (r *Registry) RoundID() string {
	return r.roundID
}

// NewRound discards all state and rebuilds the teams from the rosters.
// Roster vehicles that are not claimable are skipped; several roster entries
// mapping to the same type are merged.
func (r *Registry) NewRound(roundID string, rosters []core.TeamRoster) {
	for _, t := range r.teams {
		for _, v := range t.vehicles {
			if v.rescue != nil {
				v.rescue.timer.Stop()
			}
		}
	}

	r.roundID = roundID
	r.teams = make(map[int]*team, len(rosters))
	for _, roster := range rosters {
		t := &team{
			id:       roster.ID,
			faction:  roster.Faction,
			unitID:   roster.UnitID,
			vehicles: make(map[string]*vehicle),
			squads:   make(map[int]*Squad),
		}
		for _, spec := range roster.Vehicles {
			name, ok := r.catalog.Canonical(spec.Name)
			if !ok {
				continue
			}
			v, exists := t.vehicles[name]
			if !exists {
				v = &vehicle{name: name, display: spec.Name, claimedBy: make(map[int]time.Time)}
				t.vehicles[name] = v
			}
			v.count += spec.Count
			for _, cn := range spec.ClassNames {
				cn = strings.TrimSpace(cn)
				if cn != "" && !slices.Contains(v.classNames, cn) {
					v.classNames = append(v.classNames, cn)
				}
			}
		}
		t.names = slices.Collect(maps.Keys(t.vehicles))
		sortLongestFirst(t.names)
		r.teams[roster.ID] = t

		r.logger.Debug("team vehicles loaded", "team", roster.ID, "faction", roster.Faction, "vehicles", t.names)
	}
}

func (r *Registry) team(teamID int) (*team, error) {
	t, ok := r.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTeam, teamID)
	}
	return t, nil
}

func (r *Registry) vehicle(teamID int, name string) (*vehicle, error) {
	t, err := r.team(teamID)
	if err != nil {
		return nil, err
	}
	v, ok := t.vehicles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVehicle, name)
	}
	return v, nil
}

// Claim gives squadID a claim on the vehicle type. A squad holding another
// type has that claim replaced once the new one is known to fit. The call
// fails with *CapacityError when every slot is taken, leaving state unchanged.
func (r *Registry) Claim(teamID int, name string, squadID int) (ClaimResult, error) {
	t, err := r.team(teamID)
	if err != nil {
		return ClaimResult{}, err
	}
	v, ok := t.vehicles[name]
	if !ok {
		return ClaimResult{}, fmt.Errorf("%w: %s", ErrUnknownVehicle, name)
	}

	if _, held := v.claimedBy[squadID]; held {
		return ClaimResult{Vehicle: name, Held: true}, nil
	}
	if len(v.claimedBy) >= v.count {
		return ClaimResult{}, &CapacityError{Vehicle: v.display, Count: v.count, Holders: sortedKeys(v.claimedBy)}
	}

	res := ClaimResult{Vehicle: name}
	for _, other := range t.vehicles {
		if _, held := other.claimedBy[squadID]; held {
			delete(other.claimedBy, squadID)
			res.Replaced = other.name
		}
	}
	v.claimedBy[squadID] = r.clock.Now()
	return res, nil
}

// ClaimResult describes a successful claim.
type ClaimResult struct {
	Vehicle string
	// Replaced names the type the squad held before, if any.
	Replaced string
	// Held is set when the squad already had this claim.
	Held bool
}

// Release drops the claim held by squadID.
func (r *Registry) Release(teamID, squadID int) (string, bool) {
	t, err := r.team(teamID)
	if err != nil {
		return "", false
	}
	for _, v := range t.vehicles {
		if _, held := v.claimedBy[squadID]; held {
			delete(v.claimedBy, squadID)
			return v.name, true
		}
	}
	return "", false
}

// ClaimOf returns the vehicle type claimed by squadID.
func (r *Registry) ClaimOf(teamID, squadID int) (string, bool) {
	t, err := r.team(teamID)
	if err != nil {
		return "", false
	}
	for _, name := range t.names {
		if _, held := t.vehicles[name].claimedBy[squadID]; held {
			return name, true
		}
	}
	return "", false
}

// Claimants returns the squads holding the vehicle type, sorted.
func (r *Registry) Claimants(teamID int, name string) []int {
	v, err := r.vehicle(teamID, name)
	if err != nil {
		return nil
	}
	return sortedKeys(v.claimedBy)
}

// PruneClaims removes claims held by squads missing from live, plus the claim
// of the squad number about to be reassigned (pass 0 for none).
func (r *Registry) PruneClaims(teamID int, live []int, reassigned int) []PrunedClaim {
	t, err := r.team(teamID)
	if err != nil {
		return nil
	}
	return t.prune(live, reassigned, r.logger)
}

func (t *team) prune(live []int, reassigned int, logger *slog.Logger) []PrunedClaim {
	var pruned []PrunedClaim
	for _, name := range t.names {
		v := t.vehicles[name]
		for _, squadID := range sortedKeys(v.claimedBy) {
			if squadID == reassigned || !slices.Contains(live, squadID) {
				delete(v.claimedBy, squadID)
				pruned = append(pruned, PrunedClaim{SquadID: squadID, Vehicle: name})
				logger.Debug("pruned stale claim", "team", t.id, "squad", squadID, "vehicle", name)
			}
		}
	}
	return pruned
}

// Vehicle returns a snapshot of one vehicle type.
func (r *Registry) Vehicle(teamID int, name string) (Vehicle, bool) {
	v, err := r.vehicle(teamID, name)
	if err != nil {
		return Vehicle{}, false
	}
	return v.snapshot(), true
}

// Vehicles returns snapshots of every claimable type the team fields,
// sorted by name.
func (r *Registry) Vehicles(teamID int) []Vehicle {
	t, err := r.team(teamID)
	if err != nil {
		return nil
	}
	out := make([]Vehicle, 0, len(t.vehicles))
	for _, v := range t.vehicles {
		out = append(out, v.snapshot())
	}
	slices.SortFunc(out, func(a, b Vehicle) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// VehicleByClass maps an occupied pawn to the claimable type it belongs to.
// The pawn's instance number is dropped before the class is looked up in
// the configured class names.
func (r *Registry) VehicleByClass(teamID int, className string) (string, bool) {
	t, err := r.team(teamID)
	if err != nil || className == "" {
		return "", false
	}
	class := pawnClass(className)
	for _, name := range t.names {
		cns := t.vehicles[name].classNames
		if slices.Contains(cns, class) || slices.Contains(cns, className) {
			return name, true
		}
	}
	return "", false
}

// pawnClass strips a trailing instance number, so BP_BTR82A_RUS_C_2147
// becomes BP_BTR82A_RUS_C.
func pawnClass(pawn string) string {
	i := strings.LastIndexByte(pawn, '_')
	if i <= 0 || i == len(pawn)-1 {
		return pawn
	}
	for _, c := range pawn[i+1:] {
		if c < '0' || c > '9' {
			return pawn
		}
	}
	return pawn[:i]
}

// Faction returns the faction name of the team.
func (r *Registry) Faction(teamID int) string {
	t, err := r.team(teamID)
	if err != nil {
		return ""
	}
	return t.faction
}

// Teams returns the team ids of the current round, sorted.
func (r *Registry) Teams() []int {
	return sortedKeys(r.teams)
}

func (v *vehicle) snapshot() Vehicle {
	out := Vehicle{
		Name:        v.name,
		DisplayName: v.display,
		Count:       v.count,
		ClassNames:  slices.Clone(v.classNames),
		Claimants:   sortedKeys(v.claimedBy),
	}
	if v.rescue != nil {
		out.Rescue = &Rescue{Granter: v.rescue.granter, Rescuer: v.rescue.rescuer, Expires: v.rescue.expires}
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys
}
