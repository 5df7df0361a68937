package cache

import (
	"sort"
	"strings"
	"sync"

	"github.com/squadwarden/warden/pkg/core"
)

// Player is a cached roster entry.
type Player struct {
	core.PlayerInfo
	// Suffix is the controller name, i.e. the player name without clan tag.
	Suffix string
	// Seen is set once the player's prefix has been acted upon.
	Seen bool
	// Listed is set once the player appeared in a roster snapshot.
	Listed bool
}

// Prefix returns the clan tag part of the player name, or "" when the
// controller name is not known yet.
func (p Player) Prefix() string {
	if p.Suffix == "" || !strings.HasSuffix(p.Name, p.Suffix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(p.Name, p.Suffix))
}

// PlayerCache caches the polled player list keyed by primary id so event
// handlers can look up team and squad without querying the server.
type PlayerCache struct {
	m       sync.Mutex
	players map[string]*Player
}

func NewPlayerCache() *PlayerCache {
	return &PlayerCache{
		players: make(map[string]*Player),
	}
}

func (c *PlayerCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.players = make(map[string]*Player)
}

// Update merges a roster snapshot. Listed players missing from the snapshot
// are dropped; entries only known from log lines are kept.
func (c *PlayerCache) Update(players []core.PlayerInfo) {
	c.m.Lock()
	defer c.m.Unlock()

	present := make(map[string]struct{}, len(players))
	for _, info := range players {
		if !info.Identity.Valid() {
			continue
		}
		id := info.Identity.Primary()
		present[id] = struct{}{}

		p, ok := c.players[id]
		if !ok {
			p = &Player{}
			c.players[id] = p
		}
		p.PlayerInfo = info
		p.Listed = true
	}

	for id, p := range c.players {
		if _, ok := present[id]; !ok && p.Listed {
			delete(c.players, id)
		}
	}
}

// SetSuffix records the controller name of a player.
func (c *PlayerCache) SetSuffix(ids core.IdentitySet, suffix string) {
	if !ids.Valid() || suffix == "" {
		return
	}
	c.m.Lock()
	defer c.m.Unlock()

	id := ids.Primary()
	p, ok := c.players[id]
	if !ok {
		p = &Player{PlayerInfo: core.PlayerInfo{Identity: ids}}
		c.players[id] = p
	}
	p.Suffix = suffix
}

// MarkSeen flags a player as seen and returns it. It returns false when the
// player was already seen, or when its suffix or team is not known yet, so
// a later permission check can try again.
func (c *PlayerCache) MarkSeen(id string) (Player, bool) {
	c.m.Lock()
	defer c.m.Unlock()

	p, ok := c.players[id]
	if !ok || p.Seen || p.Suffix == "" || p.TeamID == 0 {
		return Player{}, false
	}
	p.Seen = true
	return *p, true
}

func (c *PlayerCache) Get(id string) (Player, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if p, ok := c.players[id]; ok {
		return *p, true
	}
	return Player{}, false
}

// Lookup finds a player by any of the identifiers in ids.
func (c *PlayerCache) Lookup(ids core.IdentitySet) (Player, bool) {
	if !ids.Valid() {
		return Player{}, false
	}
	if p, ok := c.Get(ids.Primary()); ok {
		return p, true
	}

	c.m.Lock()
	defer c.m.Unlock()
	for _, p := range c.players {
		if p.Identity.Matches(ids) {
			return *p, true
		}
	}
	return Player{}, false
}

// TeamOf returns the team of a player, or 0 when unknown.
func (c *PlayerCache) TeamOf(ids core.IdentitySet) int {
	p, ok := c.Lookup(ids)
	if !ok {
		return 0
	}
	return p.TeamID
}

// Players returns listed players ordered by name.
func (c *PlayerCache) Players() []Player {
	c.m.Lock()
	defer c.m.Unlock()

	out := make([]Player, 0, len(c.players))
	for _, p := range c.players {
		if p.Listed {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Identity.Primary() < out[j].Identity.Primary()
	})
	return out
}

// Len returns the number of listed players.
func (c *PlayerCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	n := 0
	for _, p := range c.players {
		if p.Listed {
			n++
		}
	}
	return n
}
