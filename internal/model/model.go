package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&WardenInfo{},
	&Round{},
	&Action{},
	&Escalation{},
	&Claim{},
}

// WardenInfo identifies the server instance writing to the database
type WardenInfo struct {
	gorm.Model
	ServerName string `json:"serverName" gorm:"size:127"`
	LogPath    string `json:"logPath" gorm:"size:255"`
}

func (*WardenInfo) TableName() string {
	return "warden_infos"
}

// Round is one played layer
type Round struct {
	ID        string         `json:"id" gorm:"primarykey;size:36"`
	LayerID   string         `json:"layerId" gorm:"size:127;index:idx_round_layer"`
	Teams     datatypes.JSON `json:"teams" gorm:"default:'[]'"` // Rosters as JSON array
	StartedAt time.Time      `json:"startedAt" gorm:"index:idx_round_started"`
	EndedAt   sql.NullTime   `json:"endedAt"`
}

func (*Round) TableName() string {
	return "rounds"
}

// Action is one outbound control request and its result
type Action struct {
	ID       string    `json:"id" gorm:"primarykey;size:36"`
	RoundID  string    `json:"roundId" gorm:"size:36;index:idx_action_round_id"`
	Time     time.Time `json:"time" gorm:"index:idx_action_time"`
	Kind     string    `json:"kind" gorm:"size:32"`
	PlayerID string    `json:"playerId" gorm:"size:64;default:NULL"`
	TeamID   int       `json:"teamId"`
	SquadID  int       `json:"squadId"`
	Message  string    `json:"message" gorm:"size:512"`
	Layer    string    `json:"layer" gorm:"size:127;default:NULL"`
	Error    string    `json:"error" gorm:"size:255;default:NULL"`
}

func (*Action) TableName() string {
	return "actions"
}

// Escalation is one stage transition of an escalation case
type Escalation struct {
	ID         string    `json:"id" gorm:"primarykey;size:36"`
	RoundID    string    `json:"roundId" gorm:"size:36;index:idx_escalation_round_id"`
	Time       time.Time `json:"time" gorm:"index:idx_escalation_time"`
	Engine     string    `json:"engine" gorm:"size:32"`
	Subject    string    `json:"subject" gorm:"size:127;index:idx_escalation_subject"`
	Stage      int       `json:"stage"`
	Transition string    `json:"transition" gorm:"size:16"`
}

func (*Escalation) TableName() string {
	return "escalations"
}

// Claim is one claim decision taken for a squad
type Claim struct {
	ID        string         `json:"id" gorm:"primarykey;size:36"`
	RoundID   string         `json:"roundId" gorm:"size:36;index:idx_claim_round_id"`
	Time      time.Time      `json:"time"`
	TeamID    int            `json:"teamId"`
	SquadID   int            `json:"squadId"`
	SquadName string         `json:"squadName" gorm:"size:127"`
	Vehicle   string         `json:"vehicle" gorm:"size:127;default:NULL"`
	Outcome   string         `json:"outcome" gorm:"size:16"`
	Holders   datatypes.JSON `json:"holders" gorm:"default:'[]'"` // Squad numbers as JSON array
}

func (*Claim) TableName() string {
	return "claims"
}
