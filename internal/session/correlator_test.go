package session

import (
	"testing"
	"time"

	"github.com/squadwarden/warden/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	epoch  = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	player = core.ParseIdentitySet("EOS: 0002aa steam: 7656")
)

func possess(key, chain string) *core.PossessEvent {
	return &core.PossessEvent{Possession: core.Possession{
		Time: epoch, ControllerKey: key, Identity: player, ClassName: "BP_BTR80_RWS_C", Chain: chain,
	}}
}

func unpossess(key, chain string, id core.IdentitySet) *core.UnpossessEvent {
	return &core.UnpossessEvent{Possession: core.Possession{
		Time: epoch.Add(time.Minute), ControllerKey: key, Identity: id, ClassName: "BP_BTR80_RWS_C", Chain: chain,
	}}
}

func TestCorrelator_SwitchPossess(t *testing.T) {
	tests := []struct {
		name         string
		possessChain string
		unposChain   string
		want         bool
	}{
		{name: "same chain", possessChain: "42", unposChain: "42", want: true},
		{name: "different chain", possessChain: "42", unposChain: "43", want: false},
		{name: "empty chains", possessChain: "", unposChain: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil)
			c.OnPossess(possess("PC_1", tt.possessChain))

			ev := unpossess("PC_1", tt.unposChain, player)
			require.True(t, c.OnUnpossess(ev))
			assert.Equal(t, tt.want, ev.SwitchPossess)
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestCorrelator_UnpossessWithoutSession(t *testing.T) {
	c := New(nil)

	ev := unpossess("PC_9", "1", player)
	assert.True(t, c.OnUnpossess(ev))
	assert.False(t, ev.SwitchPossess)
	assert.Equal(t, 0, c.Len())
}

func TestCorrelator_UnresolvedUnpossessDropped(t *testing.T) {
	c := New(nil)
	c.OnPossess(possess("PC_1", "7"))

	ev := unpossess("PC_1", "7", core.Unresolved())
	assert.False(t, c.OnUnpossess(ev))

	holder, ok := c.Holder("PC_1")
	require.True(t, ok, "session must survive a dropped unpossess")
	assert.Equal(t, player.Primary(), holder.Primary())
}

func TestCorrelator_PossessOverwritesStaleSession(t *testing.T) {
	c := New(nil)
	c.OnPossess(possess("PC_1", "1"))
	c.OnPossess(possess("PC_1", "2"))
	assert.Equal(t, 1, c.Len())

	ev := unpossess("PC_1", "2", player)
	c.OnUnpossess(ev)
	assert.True(t, ev.SwitchPossess)
}

func TestCorrelator_KeysAreIndependent(t *testing.T) {
	c := New(nil)
	c.OnPossess(possess("PC_1", "1"))
	c.OnPossess(possess("PC_2", "5"))

	second := unpossess("PC_2", "5", player)
	first := unpossess("PC_1", "9", player)
	c.OnUnpossess(second)
	c.OnUnpossess(first)

	assert.True(t, second.SwitchPossess)
	assert.False(t, first.SwitchPossess)
}

func TestCorrelator_Correlate(t *testing.T) {
	c := New(nil)

	_, ok := c.Correlate(possess("PC_1", "3"))
	require.True(t, ok)
	assert.Equal(t, 1, c.Len())

	out, ok := c.Correlate(unpossess("PC_1", "3", player))
	require.True(t, ok)
	assert.True(t, out.(*core.UnpossessEvent).SwitchPossess)

	_, ok = c.Correlate(unpossess("PC_1", "3", core.Unresolved()))
	assert.False(t, ok)

	other := &core.RoundEndedEvent{Time: epoch}
	out, ok = c.Correlate(other)
	assert.True(t, ok)
	assert.Same(t, other, out)
}

func TestCorrelator_Reset(t *testing.T) {
	c := New(nil)
	c.OnPossess(possess("PC_1", "1"))
	c.OnPossess(possess("PC_2", "1"))

	c.Reset()
	assert.Equal(t, 0, c.Len())
}
