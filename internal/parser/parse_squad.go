package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/squadwarden/warden/pkg/core"
)

var squadCreatedPattern = regexp.MustCompile(linePrefix +
	`LogSquad: (.+) \(Online IDs:([^)]+)\) has created Squad (\d+) \(Squad Name: (.+)\) on (.+)`)

func (p *Parser) parseSquadCreated(m []string) (core.Event, error) {
	t, err := parseTime(m[1])
	if err != nil {
		return nil, err
	}
	squadID, err := parseInt(m[5])
	if err != nil {
		return nil, fmt.Errorf("error converting squad id: %w", err)
	}

	ev := &core.SquadCreatedEvent{
		Time:       t,
		LeaderName: m[3],
		Leader:     core.ParseIdentitySet(m[4]),
		SquadID:    squadID,
		SquadName:  m[6],
		TeamName:   strings.TrimSpace(m[7]),
	}
	if !ev.Leader.Valid() {
		p.logger.Debug("squad created by unresolved player", "squad", squadID, "name", ev.SquadName)
	}
	return ev, nil
}
