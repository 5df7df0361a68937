package vehicleclaims

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadwarden/warden/internal/cache"
	"github.com/squadwarden/warden/internal/claims"
	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/internal/rcon"
	"github.com/squadwarden/warden/internal/serial"
	"github.com/squadwarden/warden/pkg/core"
)

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// mockRecorder captures journal records.
type mockRecorder struct {
	mu          sync.Mutex
	claims      []*core.ClaimRecord
	escalations []*core.EscalationRecord
}

func (m *mockRecorder) RecordClaim(c *core.ClaimRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims = append(m.claims, c)
	return nil
}

func (m *mockRecorder) RecordEscalation(e *core.EscalationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations = append(m.escalations, e)
	return nil
}

type harness struct {
	t        *testing.T
	clock    *clock.Fake
	control  *rcon.Recorder
	players  *cache.PlayerCache
	registry *claims.Registry
	recorder *mockRecorder
	plugin   *Plugin
	bus      *dispatcher.Dispatcher
	admins   map[string]bool
}

func ids(eos string) core.IdentitySet {
	return core.NewIdentitySet(map[core.Platform]string{core.PlatformEOS: eos})
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clock:    clock.NewFake(epoch),
		control:  rcon.NewRecorder(),
		players:  cache.NewPlayerCache(),
		recorder: &mockRecorder{},
		admins:   map[string]bool{},
	}
	h.registry = claims.New(claims.Options{Clock: h.clock, Serial: serial.Inline{}, Logger: slog.Default()})

	p, err := New(cfg, Dependencies{
		Registry: h.registry,
		Players:  h.players,
		Control:  h.control,
		Clock:    h.clock,
		Serial:   serial.Inline{},
		Recorder: h.recorder,
		RoundID:  func() string { return "round-1" },
		TeamByFaction: func(name string) (int, bool) {
			switch name {
			case "Russian Ground Forces":
				return 1, true
			case "British Army":
				return 2, true
			}
			return 0, false
		},
		IsAdmin: func(s core.IdentitySet) bool { return h.admins[s.Primary()] },
	})
	require.NoError(t, err)
	h.plugin = p

	h.bus, err = dispatcher.New(nopLogger{})
	require.NoError(t, err)
	p.RegisterHandlers(h.bus)

	h.dispatch(&core.NewRoundEvent{
		Time:    epoch,
		LayerID: "Narva_RAAS_v1",
		Teams: []core.TeamRoster{
			{ID: 1, Faction: "Russian Ground Forces", Vehicles: []core.VehicleSpec{
				{Name: "BTR-82A", Count: 1, ClassNames: []string{"BP_BTR82A_C"}},
				{Name: "BTR-80", Count: 1, ClassNames: []string{"BP_BTR80_C"}},
				{Name: "T-72B3", Count: 2, ClassNames: []string{"BP_T72B3_C"}},
				{Name: "Ural 4320", Count: 4, ClassNames: []string{"BP_Ural_C"}},
			}},
			{ID: 2, Faction: "British Army", Vehicles: []core.VehicleSpec{
				{Name: "FV510 Warrior", Count: 1, ClassNames: []string{"BP_FV510_C"}},
			}},
		},
	})
	return h
}

func (h *harness) dispatch(ev core.Event) {
	h.t.Helper()
	require.NoError(h.t, h.bus.Dispatch(ev))
}

func (h *harness) roster(players ...core.PlayerInfo) {
	h.players.Update(players)
}

func player(eos string, team, squad int, leader bool) core.PlayerInfo {
	return core.PlayerInfo{Identity: ids(eos), Name: "Player " + eos, TeamID: team, SquadID: squad, IsLeader: leader}
}

func (h *harness) createSquad(leader string, squadID int, name string) {
	h.dispatch(&core.SquadCreatedEvent{
		Time:       h.clock.Now(),
		TeamName:   "Russian Ground Forces",
		SquadID:    squadID,
		SquadName:  name,
		Leader:     ids(leader),
		LeaderName: "Player " + leader,
	})
}

func (h *harness) possess(eos, class string) {
	h.dispatch(&core.PossessEvent{Possession: core.Possession{
		Time: h.clock.Now(), ControllerKey: "Player " + eos, Identity: ids(eos), ClassName: class,
	}})
}

func (h *harness) unpossess(eos, class string) {
	h.dispatch(&core.UnpossessEvent{Possession: core.Possession{
		Time: h.clock.Now(), ControllerKey: "Player " + eos, Identity: ids(eos), ClassName: class,
	}})
}

func (h *harness) chat(eos, channel, command, message string) {
	h.dispatch(&core.ChatCommandEvent{
		Time: h.clock.Now(), Command: command, Channel: channel, Speaker: ids(eos), SpeakerName: "Player " + eos, Message: message,
	})
}

func TestSquadCreatedGetsClaim(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.createSquad("lead1", 1, "BTR82 gunners")

	assert.Equal(t, []string{"You have the claim for BTR-82A."}, h.control.WarningsTo("lead1"))
	assert.Equal(t, []int{1}, h.registry.Claimants(1, "BTR82"))
	require.Len(t, h.recorder.claims, 1)
	assert.Equal(t, "claimed", h.recorder.claims[0].Outcome)
	assert.Equal(t, "round-1", h.recorder.claims[0].RoundID)
}

func TestSquadCreatedOverCapacityIsDisbanded(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.createSquad("lead1", 1, "BTR82")
	h.createSquad("lead2", 2, "btr-82 a")

	assert.Equal(t, []string{"BTR-82A is already claimed by squad 1."}, h.control.WarningsTo("lead2"))
	disbands := h.control.Of(core.ActionDisbandSquad)
	require.Len(t, disbands, 1)
	assert.Equal(t, 1, disbands[0].TeamID)
	assert.Equal(t, 2, disbands[0].SquadID)
	assert.Equal(t, []int{1}, h.registry.Claimants(1, "BTR82"))
	_, ok := h.registry.Squad(1, 2)
	assert.False(t, ok)
}

func TestSquadCreatedAmbiguousName(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.createSquad("lead1", 4, "1 BTR")

	assert.Equal(t, []string{"Squad name 1 BTR claims multiple vehicles.\nBe more specific!"}, h.control.WarningsTo("lead1"))
	assert.Len(t, h.control.Of(core.ActionDisbandSquad), 1)
	assert.Empty(t, h.registry.Claimants(1, "BTR82"))
	assert.Empty(t, h.registry.Claimants(1, "BTR80"))
}

func TestSquadCreatedWithoutVehicle(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.createSquad("lead1", 1, "Infantry")

	assert.Empty(t, h.control.Actions())
	_, ok := h.registry.Squad(1, 1)
	assert.True(t, ok)
}

func TestSquadNumberReuseFreesClaim(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.createSquad("lead1", 1, "BTR82")
	h.createSquad("lead2", 1, "Infantry")
	h.createSquad("lead3", 2, "BTR82")

	assert.Equal(t, []string{"You have the claim for BTR-82A."}, h.control.WarningsTo("lead3"))
	assert.Equal(t, []int{2}, h.registry.Claimants(1, "BTR82"))
}

func TestTheftEscalatesToKill(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.roster(player("lead1", 1, 1, true), player("thief", 1, 3, false))
	h.createSquad("lead1", 1, "BTR82")

	h.possess("thief", "BP_BTR82A_C_2147")
	assert.Equal(t, []string{
		"Claim violation!\n\nSquad 1 has the claim for this vehicle.\nExit the vehicle immediately.",
	}, h.control.WarningsTo("thief"))

	h.clock.Advance(10 * time.Second)
	warnings := h.control.WarningsTo("thief")
	require.Len(t, warnings, 2)
	assert.Equal(t, "Claim violation!\n\nExit the vehicle or be killed.\nYou have 10 seconds.", warnings[1])
	assert.Empty(t, h.control.Of(core.ActionSwitchTeam))

	h.clock.Advance(10 * time.Second)
	switches := h.control.Of(core.ActionSwitchTeam)
	require.Len(t, switches, 2)
	assert.Equal(t, "thief", switches[0].PlayerID)
	assert.Equal(t, "thief", switches[1].PlayerID)

	theft, _ := h.plugin.LiveCases()
	assert.Zero(t, theft)
}

func TestTheftClearedOnExit(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.roster(player("thief", 1, 3, false))

	h.possess("thief", "BP_T72B3_C_1")
	assert.Equal(t, []string{
		"Claim violation!\n\nThis vehicle must be claimed in your squad name.\nExit the vehicle immediately.",
	}, h.control.WarningsTo("thief"))

	h.clock.Advance(5 * time.Second)
	h.unpossess("thief", "BP_T72B3_C_1")
	h.clock.Advance(time.Minute)

	assert.Len(t, h.control.WarningsTo("thief"), 1)
	assert.Empty(t, h.control.Of(core.ActionSwitchTeam))
}

func TestTheftNotClearedByOtherPlayer(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.roster(player("thief", 1, 3, false), player("other", 1, 4, false))

	h.possess("thief", "BP_T72B3_C_1")
	h.unpossess("other", "BP_T72B3_C_9")
	h.clock.Advance(20 * time.Second)

	assert.Len(t, h.control.Of(core.ActionSwitchTeam), 2)
}

func TestClaimantAndNonClaimableAreIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.roster(player("lead1", 1, 1, true), player("crew", 1, 1, false), player("walker", 1, 2, false))
	h.createSquad("lead1", 1, "T72")
	h.control.Reset()

	h.possess("crew", "BP_T72B3_C_1")
	h.possess("walker", "BP_Ural_C_4")
	h.possess("walker", "BP_Soldier_RU_Rifleman")

	assert.Empty(t, h.control.Actions())
}

func TestWrongVehicleWarning(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.roster(player("lead1", 1, 1, true))
	h.createSquad("lead1", 1, "T72")

	h.possess("lead1", "BP_BTR80_C_7")

	warnings := h.control.WarningsTo("lead1")
	require.Len(t, warnings, 2)
	assert.Equal(t, "Wrong vehicle!\n\nYou have claim for T-72B3.\nThis is a BTR-80.\nExit the vehicle immediately.", warnings[1])
}

func TestRescueByLeader(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.roster(player("lead1", 1, 1, true), player("helper", 1, 5, false))
	h.createSquad("lead1", 1, "BTR82")
	h.control.Reset()

	h.chat("lead1", core.ChatSquad, "rescue", "")
	assert.Equal(t, []string{"Rescue mode:\n\nBTR-82A can be entered without claim for the next 5 minutes."}, h.control.WarningsTo("lead1"))

	h.possess("helper", "BP_BTR82A_C_1")
	assert.Equal(t, []string{msgRescueEnter}, h.control.WarningsTo("helper"))
	theft, _ := h.plugin.LiveCases()
	assert.Zero(t, theft)

	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, "Rescue timer expired for BTR-82A.", h.control.WarningsTo("lead1")[1])
	assert.Equal(t, "Rescue timer expired for BTR-82A.", h.control.WarningsTo("helper")[1])
}

func TestRescueRules(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.roster(player("lead1", 1, 1, true), player("member", 1, 1, false), player("admin", 1, 6, false))
	h.admins["admin"] = true

	h.chat("lead1", core.ChatAll, "rescue", "")
	assert.Equal(t, []string{msgRescueSquadOnly}, h.control.WarningsTo("lead1"))

	h.chat("member", core.ChatSquad, "rescue", "")
	assert.Equal(t, []string{msgRescueLeaderOnly}, h.control.WarningsTo("member"))

	h.chat("lead1", core.ChatSquad, "rescue", "")
	assert.Equal(t, msgRescueNothing, h.control.WarningsTo("lead1")[1])

	h.chat("admin", core.ChatSquad, "rescue", "tank")
	assert.Equal(t, []string{"Rescue mode:\n\nT-72B3 can be entered without claim for the next 5 minutes."}, h.control.WarningsTo("admin"))
	assert.True(t, h.registry.RescueActive(1, "T72"))

	h.chat("admin", core.ChatSquad, "rescue", "helicopter")
	assert.Equal(t, `No vehicle matches "helicopter".`, h.control.WarningsTo("admin")[1])
}

func TestClaimsCommandTogglesEnforcement(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.roster(player("admin", 1, 6, false), player("thief", 1, 3, false))

	h.chat("admin", core.ChatAll, "claims", "disable")
	assert.Empty(t, h.control.Actions(), "ignored outside admin chat")

	h.possess("thief", "BP_T72B3_C_1")
	h.chat("admin", core.ChatAdmin, "claims", "disable")
	assert.False(t, h.plugin.Enabled())
	assert.Equal(t, msgEnforcementDisabled, h.control.Of(core.ActionBroadcast)[0].Message)

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.control.Of(core.ActionSwitchTeam), "cases dropped on disable")

	h.possess("thief", "BP_T72B3_C_1")
	assert.Len(t, h.control.WarningsTo("thief"), 1)

	h.chat("admin", core.ChatAdmin, "claims", "")
	assert.Equal(t, "Claim enforcement is disabled.\n!claims enable\n!claims disable", h.control.WarningsTo("admin")[1])

	h.chat("admin", core.ChatAdmin, "claims", "ENABLE")
	assert.True(t, h.plugin.Enabled())
	assert.Len(t, h.control.Of(core.ActionBroadcast), 2)
}

func TestLockedSquadWarnedThenDisbanded(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	snapshot := func(size int, locked bool) {
		h.dispatch(&core.SquadListSnapshot{Time: h.clock.Now(), Squads: []core.SquadInfo{
			{TeamID: 1, SquadID: 2, Name: "Infantry", Size: size, Locked: locked, Creator: ids("lead2")},
			{TeamID: 1, SquadID: 3, Name: "Mortars", Size: 1, Locked: true, Creator: ids("lead3")},
		}})
	}

	snapshot(2, true)
	_, lock := h.plugin.LiveCases()
	assert.Equal(t, 1, lock, "exempt name is not a case")

	h.clock.Advance(60 * time.Second)
	assert.Equal(t, []string{
		"Squad locking violation!\n\nYou can't lock infantry squads with less than 4 people.\nUnlock or be disbanded in 90 seconds.",
	}, h.control.WarningsTo("lead2"))

	h.clock.Advance(60 * time.Second)
	assert.Contains(t, h.control.WarningsTo("lead2")[1], "disbanded in 30 seconds")

	h.clock.Advance(30 * time.Second)
	assert.Equal(t, msgLockDisbanded, h.control.WarningsTo("lead2")[2])
	disbands := h.control.Of(core.ActionDisbandSquad)
	require.Len(t, disbands, 1)
	assert.Equal(t, 2, disbands[0].SquadID)
	assert.Equal(t, `Russian Ground Forces squad 2 "Infantry" was disbanded for violating the squad locking rule.`,
		h.control.Of(core.ActionBroadcast)[0].Message)
	assert.Empty(t, h.control.WarningsTo("lead3"))
}

func TestLockedSquadClearedWhenFixed(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.dispatch(&core.SquadListSnapshot{Time: h.clock.Now(), Squads: []core.SquadInfo{
		{TeamID: 1, SquadID: 2, Name: "Infantry", Size: 2, Locked: true, Creator: ids("lead2")},
	}})
	h.clock.Advance(30 * time.Second)

	h.dispatch(&core.SquadListSnapshot{Time: h.clock.Now(), Squads: []core.SquadInfo{
		{TeamID: 1, SquadID: 2, Name: "Infantry", Size: 5, Locked: true, Creator: ids("lead2")},
	}})
	h.clock.Advance(5 * time.Minute)

	assert.Empty(t, h.control.Actions())
}

func TestLockedSquadTogglingStillDisbanded(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	snapshot := func(locked bool) {
		h.dispatch(&core.SquadListSnapshot{Time: h.clock.Now(), Squads: []core.SquadInfo{
			{TeamID: 1, SquadID: 2, Name: "Infantry", Size: 2, Locked: locked, Creator: ids("lead2")},
		}})
	}

	// Unlock for one poll right after every warning.
	for i := 0; i < 3; i++ {
		snapshot(true)
		h.clock.Advance(61 * time.Second)
		snapshot(false)
		h.clock.Advance(time.Second)
	}

	warnings := h.control.WarningsTo("lead2")
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "disbanded in 90 seconds")
	assert.Contains(t, warnings[1], "disbanded in 30 seconds")
	assert.Equal(t, msgLockDisbanded, warnings[2])
	require.Len(t, h.control.Of(core.ActionDisbandSquad), 1)
}

func TestLockedSquadWarningsForgotten(t *testing.T) {
	tests := []struct {
		name   string
		forget func(h *harness)
	}{
		{"squad gone", func(h *harness) {
			h.dispatch(&core.SquadListSnapshot{Time: h.clock.Now()})
		}},
		{"new round", func(h *harness) {
			h.dispatch(&core.NewRoundEvent{Time: h.clock.Now(), LayerID: "Gorodok_AAS_v1", Teams: []core.TeamRoster{{ID: 1}, {ID: 2}}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			snapshot := func(locked bool) {
				h.dispatch(&core.SquadListSnapshot{Time: h.clock.Now(), Squads: []core.SquadInfo{
					{TeamID: 1, SquadID: 2, Name: "Infantry", Size: 2, Locked: locked, Creator: ids("lead2")},
				}})
			}

			snapshot(true)
			h.clock.Advance(61 * time.Second)
			snapshot(false)
			h.clock.Advance(time.Second)
			tt.forget(h)
			h.clock.Advance(time.Second)

			snapshot(true)
			h.clock.Advance(60 * time.Second)
			warnings := h.control.WarningsTo("lead2")
			require.Len(t, warnings, 2)
			assert.Equal(t, warnings[0], warnings[1], "warnings start over")
			assert.Empty(t, h.control.Of(core.ActionDisbandSquad))
		})
	}
}

func TestSnapshotDiscoveredSquadGetsClaim(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.dispatch(&core.SquadListSnapshot{Time: h.clock.Now(), Squads: []core.SquadInfo{
		{TeamID: 2, SquadID: 1, Name: "Warrior", Size: 3, Creator: ids("brit")},
	}})

	assert.Equal(t, []int{1}, h.registry.Claimants(2, "FV510"))
	assert.Equal(t, []string{"You have the claim for FV510 Warrior."}, h.control.WarningsTo("brit"))
}

func TestNewRoundResetsCases(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.roster(player("thief", 1, 3, false))
	h.possess("thief", "BP_T72B3_C_1")

	h.dispatch(&core.NewRoundEvent{Time: h.clock.Now(), LayerID: "Gorodok_AAS_v1", Teams: []core.TeamRoster{{ID: 1}, {ID: 2}}})
	h.clock.Advance(time.Minute)

	theft, lock := h.plugin.LiveCases()
	assert.Zero(t, theft)
	assert.Zero(t, lock)
	assert.Empty(t, h.control.Of(core.ActionSwitchTeam))
	assert.Empty(t, h.registry.Vehicles(1))
}
