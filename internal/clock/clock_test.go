package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func TestFake_AdvanceRunsDueTimersInOrder(t *testing.T) {
	f := NewFake(epoch)

	var order []string
	f.AfterFunc(20*time.Second, func() { order = append(order, "b") })
	f.AfterFunc(10*time.Second, func() { order = append(order, "a") })
	f.AfterFunc(time.Minute, func() { order = append(order, "c") })

	f.Advance(30 * time.Second)

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, f.Pending())
	assert.Equal(t, epoch.Add(30*time.Second), f.Now())
}

func TestFake_CallbackSeesDeadlineAsNow(t *testing.T) {
	f := NewFake(epoch)

	var seen time.Time
	f.AfterFunc(5*time.Second, func() { seen = f.Now() })
	f.Advance(time.Minute)

	assert.Equal(t, epoch.Add(5*time.Second), seen)
}

func TestFake_ChainedTimersWithinWindow(t *testing.T) {
	f := NewFake(epoch)

	fired := 0
	f.AfterFunc(10*time.Second, func() {
		fired++
		f.AfterFunc(10*time.Second, func() { fired++ })
	})

	f.Advance(15 * time.Second)
	assert.Equal(t, 1, fired)

	f.Advance(5 * time.Second)
	assert.Equal(t, 2, fired)
}

func TestFake_StopIsIdempotent(t *testing.T) {
	f := NewFake(epoch)

	fired := false
	timer := f.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	f.Advance(time.Minute)
	assert.False(t, fired)
	assert.Equal(t, 0, f.Pending())
}

func TestFake_StopAfterFire(t *testing.T) {
	f := NewFake(epoch)

	timer := f.AfterFunc(time.Second, func() {})
	f.Advance(2 * time.Second)

	assert.False(t, timer.Stop())
}

func TestReal_AfterFunc(t *testing.T) {
	c := Real()
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
