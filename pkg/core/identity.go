// pkg/core/identity.go
package core

import (
	"slices"
	"strings"
)

// Platform is the online service an identifier belongs to.
type Platform string

const (
	PlatformEOS   Platform = "eos"
	PlatformSteam Platform = "steam"
	PlatformEpic  Platform = "epic"
	PlatformXbox  Platform = "xbl"
	PlatformPSN   Platform = "psn"
)

// InvalidMarker appears in the Online IDs field when the server could not
// resolve a player's platform accounts.
const InvalidMarker = "INVALID"

// platformLabels maps the labels used in "Online IDs:" fields to platforms.
var platformLabels = map[string]Platform{
	"EOS":   PlatformEOS,
	"STEAM": PlatformSteam,
	"EPIC":  PlatformEpic,
	"XBL":   PlatformXbox,
	"PSN":   PlatformPSN,
}

// primaryOrder is the preference order for the primary identifier.
var primaryOrder = []Platform{PlatformEOS, PlatformSteam, PlatformEpic, PlatformXbox, PlatformPSN}

// IdentitySet holds one identifier per platform for a single player.
// The zero value is the unresolved identity.
type IdentitySet struct {
	ids     map[Platform]string
	primary Platform
}

// Unresolved returns the sentinel identity used when a log line carries no
// usable identifier.
func Unresolved() IdentitySet {
	return IdentitySet{}
}

// NewIdentitySet builds an identity from explicit platform ids. Empty ids are
// skipped.
func NewIdentitySet(ids map[Platform]string) IdentitySet {
	s := IdentitySet{ids: make(map[Platform]string, len(ids))}
	for p, id := range ids {
		if id != "" {
			s.ids[p] = id
		}
	}
	s.primary = s.pickPrimary()
	return s
}

// ParseIdentitySet parses the raw Online IDs field of a log line, for example
// "EOS: 0002a10186d9414496bf20d22d3860ba steam: 76561198012345678".
func ParseIdentitySet(raw string) IdentitySet {
	if strings.Contains(raw, InvalidMarker) {
		return Unresolved()
	}

	ids := make(map[Platform]string)
	tokens := strings.Fields(raw)
	for i := 0; i < len(tokens)-1; i++ {
		label, ok := strings.CutSuffix(tokens[i], ":")
		if !ok {
			continue
		}
		platform, known := platformLabels[strings.ToUpper(label)]
		if !known {
			continue
		}
		id := tokens[i+1]
		if strings.HasSuffix(id, ":") {
			continue
		}
		if _, dup := ids[platform]; !dup {
			ids[platform] = id
		}
		i++
	}

	if len(ids) == 0 {
		return Unresolved()
	}
	return NewIdentitySet(ids)
}

func (s IdentitySet) pickPrimary() Platform {
	for _, p := range primaryOrder {
		if _, ok := s.ids[p]; ok {
			return p
		}
	}
	for _, p := range s.Platforms() {
		return p
	}
	return ""
}

// Valid reports whether the identity carries at least one identifier.
func (s IdentitySet) Valid() bool {
	return s.primary != ""
}

// Primary returns the identifier used to address the player.
func (s IdentitySet) Primary() string {
	return s.ids[s.primary]
}

// PrimaryPlatform returns the platform of the primary identifier.
func (s IdentitySet) PrimaryPlatform() Platform {
	return s.primary
}

// ID returns the identifier for a platform.
func (s IdentitySet) ID(p Platform) (string, bool) {
	id, ok := s.ids[p]
	return id, ok
}

// Platforms returns the platforms present, sorted.
func (s IdentitySet) Platforms() []Platform {
	out := make([]Platform, 0, len(s.ids))
	for p := range s.ids {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Matches reports whether both identities share an identifier on any platform.
func (s IdentitySet) Matches(other IdentitySet) bool {
	for p, id := range s.ids {
		if oid, ok := other.ids[p]; ok && oid == id {
			return true
		}
	}
	return false
}

// String renders the identity in the same layout as the log field.
func (s IdentitySet) String() string {
	if !s.Valid() {
		return InvalidMarker
	}
	var b strings.Builder
	for _, p := range primaryOrder {
		id, ok := s.ids[p]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(labelFor(p))
		b.WriteString(": ")
		b.WriteString(id)
	}
	return b.String()
}

func labelFor(p Platform) string {
	if p == PlatformEOS {
		return "EOS"
	}
	return string(p)
}
