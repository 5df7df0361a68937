// pkg/core/round.go
package core

import "time"

// VehicleSpec describes one claimable vehicle type fielded by a team.
type VehicleSpec struct {
	Name       string
	Count      int
	ClassNames []string
}

// TeamRoster is one team's faction and vehicle list for a round.
type TeamRoster struct {
	ID       int
	Faction  string
	UnitID   string
	Vehicles []VehicleSpec
}

// SquadInfo is one row of the polled squad list.
type SquadInfo struct {
	TeamID  int
	SquadID int
	Name    string
	Size    int
	Locked  bool
	Creator IdentitySet
}

// PlayerInfo is one row of the polled player list.
type PlayerInfo struct {
	Identity IdentitySet
	Name     string
	TeamID   int
	SquadID  int
	IsLeader bool
}

// Round is the bookkeeping record for a played layer.
type Round struct {
	ID        string
	LayerID   string
	Teams     []TeamRoster
	StartedAt time.Time
	EndedAt   time.Time
}
