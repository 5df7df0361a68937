package parser

import (
	"regexp"
	"strings"

	"github.com/squadwarden/warden/internal/util"
	"github.com/squadwarden/warden/pkg/core"
)

// CommandPrefix starts every chat command.
const CommandPrefix = "!"

// Chat lines come from the console stream, which carries no timestamp.
var chatPattern = regexp.MustCompile(`^\[(ChatAll|ChatTeam|ChatSquad|ChatAdmin)] \[Online IDs:([^\]]+)] (.+?) : (.*)$`)

// parseChat returns a ChatCommandEvent for "!word rest" messages and
// nothing for ordinary chat.
func (p *Parser) parseChat(m []string) (core.Event, error) {
	text := strings.TrimSpace(m[4])
	if !strings.HasPrefix(text, CommandPrefix) {
		return nil, nil
	}
	word, rest := util.FirstWord(strings.TrimPrefix(text, CommandPrefix))
	if word == "" {
		return nil, nil
	}

	return &core.ChatCommandEvent{
		Time:        p.clock.Now().UTC(),
		Command:     strings.ToLower(word),
		Channel:     m[1],
		Speaker:     core.ParseIdentitySet(m[2]),
		SpeakerName: m[3],
		Message:     rest,
	}, nil
}
