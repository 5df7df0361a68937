package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/pkg/core"
)

// TimeLayout is the timestamp format of the dedicated server log.
const TimeLayout = "2006.01.02-15.04.05:000"

// linePrefix matches the "[time][chain]" header of a server log line. Some
// builds print a numeric line counter in front of it.
const linePrefix = `^[0-9]*\[([0-9.:-]+)]\[([ 0-9]*)]`

// lineParser converts the submatches of one pattern into an event.
type lineParser struct {
	name    string
	pattern *regexp.Regexp
	parse   func(p *Parser, m []string) (core.Event, error)
}

// Parser provides pure line -> core.Event conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger  *slog.Logger
	clock   clock.Clock
	parsers []lineParser
}

// NewParser creates a parser recognising every supported line type.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger: logger,
		clock:  clock.Real(),
		parsers: []lineParser{
			{"possess", possessPattern, (*Parser).parsePossess},
			{"unpossess", unpossessPattern, (*Parser).parseUnpossess},
			{"squad-created", squadCreatedPattern, (*Parser).parseSquadCreated},
			{"player-prefix", playerPrefixPattern, (*Parser).parsePlayerPrefix},
			{"round-ended", roundEndedPattern, (*Parser).parseRoundEnded},
			{"chat", chatPattern, (*Parser).parseChat},
		},
	}
}

// SetClock sets the clock used to stamp lines that carry no timestamp.
func (p *Parser) SetClock(c clock.Clock) {
	p.clock = c
}

// ParseLine returns the event carried by line, or (nil, nil) when the line
// is not one the engine cares about.
func (p *Parser) ParseLine(line string) (core.Event, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, nil
	}
	for _, lp := range p.parsers {
		m := lp.pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ev, err := lp.parse(p, m)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s line: %w", lp.name, err)
		}
		return ev, nil
	}
	return nil, nil
}

// parseTime reads a log timestamp. Server logs are written in UTC.
func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("error converting timestamp %q: %w", s, err)
	}
	return t, nil
}

// parseInt parses a decimal integer that may be padded with spaces.
func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
