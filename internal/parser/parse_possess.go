package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/squadwarden/warden/pkg/core"
)

var (
	possessPattern = regexp.MustCompile(linePrefix +
		`LogSquadTrace: \[DedicatedServer](?:ASQPlayerController::)?OnPossess\(\): PC=(.+) \(Online IDs:([^)]+)\) .*FullPath=([A-z0-9_]+) .+Seat Number=([0-9]+)`)
	unpossessPattern = regexp.MustCompile(linePrefix +
		`LogSquadTrace: \[DedicatedServer](?:ASQPlayerController::)?OnUnPossess\(\): PC=(.+) \(Online IDs:([^)]+)\) .*FullPath=([A-z0-9_]+) .+Seat Number=([0-9]+)`)
)

func (p *Parser) parsePossession(m []string) (core.Possession, error) {
	var pos core.Possession

	t, err := parseTime(m[1])
	if err != nil {
		return pos, err
	}
	seat, err := parseInt(m[6])
	if err != nil {
		return pos, fmt.Errorf("error converting seat number: %w", err)
	}

	pos.Time = t
	pos.Chain = strings.TrimSpace(m[2])
	pos.ControllerKey = m[3]
	pos.Identity = core.ParseIdentitySet(m[4])
	pos.ClassName = m[5]
	pos.Seat = seat
	return pos, nil
}

func (p *Parser) parsePossess(m []string) (core.Event, error) {
	pos, err := p.parsePossession(m)
	if err != nil {
		return nil, err
	}
	return &core.PossessEvent{Possession: pos}, nil
}

// parseUnpossess keeps lines with unresolved ids; the session correlator
// discards them.
func (p *Parser) parseUnpossess(m []string) (core.Event, error) {
	pos, err := p.parsePossession(m)
	if err != nil {
		return nil, err
	}
	return &core.UnpossessEvent{Possession: pos}, nil
}
