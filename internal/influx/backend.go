package influx

import (
	"strconv"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/squadwarden/warden/pkg/core"
)

// Backend writes journal records as InfluxDB points. It implements
// storage.Backend; the Manager owns the connection.
type Backend struct {
	m      *Manager
	server string
}

// NewBackend creates a journal backend tagging every point with server.
func NewBackend(m *Manager, server string) *Backend {
	return &Backend{m: m, server: server}
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return b.m.Close() }

func (b *Backend) StartRound(r *core.Round) error {
	return b.m.WritePoint(RoundPoint(r, b.server, "started"))
}

func (b *Backend) EndRound(r *core.Round) error {
	return b.m.WritePoint(RoundPoint(r, b.server, "ended"))
}

func (b *Backend) RecordAction(a *core.ActionRecord) error {
	return b.m.WritePoint(ActionPoint(a, b.server))
}

func (b *Backend) RecordEscalation(e *core.EscalationRecord) error {
	return b.m.WritePoint(EscalationPoint(e, b.server))
}

func (b *Backend) RecordClaim(c *core.ClaimRecord) error {
	return b.m.WritePoint(ClaimPoint(c, b.server))
}

// RoundPoint builds the point for a round boundary.
func RoundPoint(r *core.Round, server, phase string) *influxdb2_write.Point {
	at := r.StartedAt
	if phase == "ended" && !r.EndedAt.IsZero() {
		at = r.EndedAt
	}
	p := influxdb2_write.NewPointWithMeasurement("round").
		AddTag("server", server).
		AddTag("phase", phase).
		AddField("round_id", r.ID).
		AddField("layer", r.LayerID).
		SetTime(at)
	for _, t := range r.Teams {
		p.AddTag("team"+strconv.Itoa(t.ID), t.Faction)
	}
	return p
}

// ActionPoint builds the point for an issued control request.
func ActionPoint(a *core.ActionRecord, server string) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("action").
		AddTag("server", server).
		AddTag("kind", string(a.Kind)).
		AddTag("failed", strconv.FormatBool(a.Error != "")).
		AddField("round_id", a.RoundID).
		AddField("player_id", a.PlayerID).
		AddField("message", a.Message).
		AddField("count", 1).
		SetTime(a.Time)
}

// EscalationPoint builds the point for an escalation transition.
func EscalationPoint(e *core.EscalationRecord, server string) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("escalation").
		AddTag("server", server).
		AddTag("engine", e.Engine).
		AddTag("transition", e.Transition).
		AddField("round_id", e.RoundID).
		AddField("subject", e.Subject).
		AddField("stage", e.Stage).
		SetTime(e.Time)
}

// ClaimPoint builds the point for a claim decision.
func ClaimPoint(c *core.ClaimRecord, server string) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("claim").
		AddTag("server", server).
		AddTag("outcome", c.Outcome).
		AddTag("team", strconv.Itoa(c.TeamID)).
		AddField("round_id", c.RoundID).
		AddField("vehicle", c.Vehicle).
		AddField("squad", c.SquadID).
		AddField("holders", len(c.Holders)).
		SetTime(c.Time)
}
