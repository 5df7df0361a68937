// pkg/core/events.go
package core

import (
	"time"
)

// EventType identifies the kind of a typed log event.
type EventType string

const (
	EventPossess      EventType = "POSSESS"
	EventUnpossess    EventType = "UNPOSSESS"
	EventSquadCreated EventType = "SQUAD_CREATED"
	EventNewRound     EventType = "NEW_ROUND"
	EventRoundEnded   EventType = "ROUND_ENDED"
	EventChatCommand  EventType = "CHAT_COMMAND"
	EventSquadList    EventType = "SQUAD_LIST_SNAPSHOT"
	EventPlayerList   EventType = "PLAYER_LIST_SNAPSHOT"
	EventPlayerPrefix EventType = "PLAYER_PREFIX"
)

// Event is implemented by every typed event delivered on the bus.
type Event interface {
	Type() EventType
	At() time.Time
}

// Possession carries the fields shared by POSSESS and UNPOSSESS.
type Possession struct {
	Time time.Time
	// ControllerKey identifies the player controller slot (the PC= name).
	ControllerKey string
	Identity      IdentitySet
	ClassName     string
	// Chain is the chain marker printed alongside the online ids.
	Chain string
	Seat  int
}

// PossessEvent is emitted when a player takes control of a pawn.
type PossessEvent struct {
	Possession
}

func (e *PossessEvent) Type() EventType { return EventPossess }
func (e *PossessEvent) At() time.Time   { return e.Time }

// UnpossessEvent is emitted when a player leaves a pawn.
// SwitchPossess is set by the session correlator.
type UnpossessEvent struct {
	Possession
	SwitchPossess bool
}

func (e *UnpossessEvent) Type() EventType { return EventUnpossess }
func (e *UnpossessEvent) At() time.Time   { return e.Time }

// SquadCreatedEvent is emitted when a player creates a squad.
// TeamID is zero when the log line only names the faction.
type SquadCreatedEvent struct {
	Time      time.Time
	TeamID    int
	TeamName  string
	SquadID   int
	SquadName string
	Leader    IdentitySet
	// LeaderName is the controller name printed in the log line.
	LeaderName string
}

func (e *SquadCreatedEvent) Type() EventType { return EventSquadCreated }
func (e *SquadCreatedEvent) At() time.Time   { return e.Time }

// NewRoundEvent announces a new layer with the vehicles each team fields.
type NewRoundEvent struct {
	Time    time.Time
	LayerID string
	Teams   []TeamRoster
}

func (e *NewRoundEvent) Type() EventType { return EventNewRound }
func (e *NewRoundEvent) At() time.Time   { return e.Time }

// RoundEndedEvent is emitted when the match leaves the in-progress state.
type RoundEndedEvent struct {
	Time time.Time
}

func (e *RoundEndedEvent) Type() EventType { return EventRoundEnded }
func (e *RoundEndedEvent) At() time.Time   { return e.Time }

// Chat channels as printed by the server.
const (
	ChatAll   = "ChatAll"
	ChatTeam  = "ChatTeam"
	ChatSquad = "ChatSquad"
	ChatAdmin = "ChatAdmin"
)

// ChatCommandEvent is a "!word rest" chat message.
type ChatCommandEvent struct {
	Time        time.Time
	Command     string
	Channel     string
	Speaker     IdentitySet
	SpeakerName string
	Message     string
}

func (e *ChatCommandEvent) Type() EventType { return EventChatCommand }
func (e *ChatCommandEvent) At() time.Time   { return e.Time }

// SquadListSnapshot is the polled, authoritative squad list.
type SquadListSnapshot struct {
	Time   time.Time
	Squads []SquadInfo
}

func (e *SquadListSnapshot) Type() EventType { return EventSquadList }
func (e *SquadListSnapshot) At() time.Time   { return e.Time }

// PlayerListSnapshot is the polled, authoritative player list.
type PlayerListSnapshot struct {
	Time    time.Time
	Players []PlayerInfo
}

func (e *PlayerListSnapshot) Type() EventType { return EventPlayerList }
func (e *PlayerListSnapshot) At() time.Time   { return e.Time }

// PlayerPrefixEvent is emitted when the server checks a joining player's
// permissions, which happens once the player name is final.
type PlayerPrefixEvent struct {
	Time     time.Time
	PlayerID string
}

func (e *PlayerPrefixEvent) Type() EventType { return EventPlayerPrefix }
func (e *PlayerPrefixEvent) At() time.Time   { return e.Time }
