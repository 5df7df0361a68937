// pkg/core/records.go
package core

import "time"

// ActionKind names an outbound control request.
type ActionKind string

const (
	ActionWarn         ActionKind = "warn"
	ActionBroadcast    ActionKind = "broadcast"
	ActionSwitchTeam   ActionKind = "switch_team"
	ActionDisbandSquad ActionKind = "disband_squad"
	ActionSetNextLayer ActionKind = "set_next_layer"
)

// Action is a single outbound control request.
type Action struct {
	Kind     ActionKind
	PlayerID string
	TeamID   int
	SquadID  int
	Message  string
	Layer    string
}

// ActionRecord is the journal entry for an issued action.
type ActionRecord struct {
	ID      string
	RoundID string
	Time    time.Time
	Action
	Error string
}

// EscalationRecord is the journal entry for an escalation case transition.
type EscalationRecord struct {
	ID         string
	RoundID    string
	Time       time.Time
	Engine     string
	Subject    string
	Stage      int
	Transition string
}

// Escalation transitions.
const (
	TransitionOpened    = "opened"
	TransitionEscalated = "escalated"
	TransitionTerminal  = "terminal"
	TransitionCleared   = "cleared"
)

// ClaimRecord is the journal entry for a claim decision.
type ClaimRecord struct {
	ID        string
	RoundID   string
	Time      time.Time
	TeamID    int
	SquadID   int
	SquadName string
	Vehicle   string
	Outcome   string
	Holders   []int
}
