package parser

import (
	"regexp"

	"github.com/squadwarden/warden/pkg/core"
)

var (
	playerPrefixPattern = regexp.MustCompile(linePrefix +
		`LogSquadCommon: SQCommonStatics Check Permissions, UniqueId:([0-9a-f]+)`)
	roundEndedPattern = regexp.MustCompile(linePrefix +
		`LogGameState: Match State Changed from InProgress to WaitingPostMatch`)
)

func (p *Parser) parsePlayerPrefix(m []string) (core.Event, error) {
	t, err := parseTime(m[1])
	if err != nil {
		return nil, err
	}
	return &core.PlayerPrefixEvent{Time: t, PlayerID: m[3]}, nil
}

func (p *Parser) parseRoundEnded(m []string) (core.Event, error) {
	t, err := parseTime(m[1])
	if err != nil {
		return nil, err
	}
	return &core.RoundEndedEvent{Time: t}, nil
}
