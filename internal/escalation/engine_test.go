package escalation

import (
	"sync"
	"testing"
	"time"

	"github.com/squadwarden/warden/internal/clock"
	"github.com/squadwarden/warden/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

// fired records stage actions in order.
type fired struct {
	mu    sync.Mutex
	calls []string
}

func (f *fired) add(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fired) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// mockRecorder captures journal records.
type mockRecorder struct {
	mu      sync.Mutex
	records []*core.EscalationRecord
}

func (m *mockRecorder) RecordEscalation(e *core.EscalationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, e)
	return nil
}

func (m *mockRecorder) transitions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.records {
		out = append(out, r.Transition)
	}
	return out
}

type theft struct {
	class string
}

func newThiefEngine(t *testing.T, clk clock.Clock, f *fired, d1, d2 time.Duration) *Engine[string, theft] {
	t.Helper()
	e, err := New(Config[string, theft]{
		Name: "theft",
		Stages: []Stage[string, theft]{
			{Name: "second warning", Delay: d1, Action: func(k string, v theft) { f.add("warn:" + k) }},
			{Name: "kill", Delay: d2, Action: func(k string, v theft) { f.add("kill:" + k) }},
		},
		ClearOn: core.EventUnpossess,
		Cancel: func(ev core.Event, k string, v theft) bool {
			u := ev.(*core.UnpossessEvent)
			return u.Identity.Primary() == k && u.ClassName == v.class
		},
		Clock: clk,
	})
	require.NoError(t, err)
	return e
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config[string, int]{Name: "empty"})
	assert.Error(t, err)

	_, err = New(Config[string, int]{Stages: []Stage[string, int]{{Delay: -time.Second}}})
	assert.Error(t, err)
}

func TestEngine_FullEscalation(t *testing.T) {
	clk := clock.NewFake(epoch)
	f := &fired{}
	e := newThiefEngine(t, clk, f, 10*time.Second, 15*time.Second)

	require.True(t, e.Detect("p1", theft{class: "BP_BTR80"}))

	clk.Advance(9 * time.Second)
	assert.Empty(t, f.list())

	clk.Advance(time.Second)
	assert.Equal(t, []string{"warn:p1"}, f.list())
	c, ok := e.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 1, c.Stage)
	assert.Equal(t, epoch.Add(25*time.Second), c.Deadline)

	clk.Advance(15 * time.Second)
	assert.Equal(t, []string{"warn:p1", "kill:p1"}, f.list())
	assert.False(t, e.Active("p1"))
	assert.Equal(t, 0, clk.Pending())
}

func TestEngine_DetectIsIdempotent(t *testing.T) {
	clk := clock.NewFake(epoch)
	f := &fired{}
	e := newThiefEngine(t, clk, f, 10*time.Second, 10*time.Second)

	assert.True(t, e.Detect("p1", theft{}))
	clk.Advance(5 * time.Second)
	assert.False(t, e.Detect("p1", theft{}))

	assert.Equal(t, 1, e.Len())
	assert.Equal(t, 1, clk.Pending())

	// The original deadline is kept.
	clk.Advance(5 * time.Second)
	assert.Equal(t, []string{"warn:p1"}, f.list())
}

func TestEngine_ClearAtAnyStage(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		want    []string
	}{
		{name: "before first stage", advance: 3 * time.Second, want: nil},
		{name: "after first stage", advance: 12 * time.Second, want: []string{"warn:p1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewFake(epoch)
			f := &fired{}
			e := newThiefEngine(t, clk, f, 10*time.Second, 10*time.Second)

			e.Detect("p1", theft{})
			clk.Advance(tt.advance)

			assert.True(t, e.Clear("p1"))
			assert.False(t, e.Clear("p1"), "second clear is a no-op")

			clk.Advance(time.Hour)
			assert.Equal(t, tt.want, f.list())
			assert.Equal(t, 0, e.Len())
		})
	}
}

func TestEngine_ClearAbsentIsNoop(t *testing.T) {
	e := newThiefEngine(t, clock.NewFake(epoch), &fired{}, time.Second, time.Second)
	assert.False(t, e.Clear("nobody"))
}

func TestEngine_RedetectAfterClearStartsOver(t *testing.T) {
	clk := clock.NewFake(epoch)
	f := &fired{}
	e := newThiefEngine(t, clk, f, 10*time.Second, 10*time.Second)

	e.Detect("p1", theft{})
	clk.Advance(12 * time.Second)
	e.Clear("p1")

	require.True(t, e.Detect("p1", theft{}))
	c, _ := e.Get("p1")
	assert.Equal(t, 0, c.Stage)

	clk.Advance(10 * time.Second)
	assert.Equal(t, []string{"warn:p1", "warn:p1"}, f.list())
}

func TestEngine_ResumeContinuesFromStage(t *testing.T) {
	clk := clock.NewFake(epoch)
	f := &fired{}
	e := newThiefEngine(t, clk, f, 10*time.Second, 15*time.Second)

	require.True(t, e.Detect("p1", theft{}))
	clk.Advance(10 * time.Second)
	c, _ := e.Get("p1")
	stage := c.Stage
	e.Clear("p1")

	require.True(t, e.Resume("p1", theft{}, stage))
	c, ok := e.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 1, c.Stage)
	assert.Equal(t, clk.Now().Add(15*time.Second), c.Deadline, "the resumed stage gets its full delay")

	clk.Advance(15 * time.Second)
	assert.Equal(t, []string{"warn:p1", "kill:p1"}, f.list())
	assert.False(t, e.Active("p1"))
}

func TestEngine_ResumeClampsStage(t *testing.T) {
	tests := []struct {
		name  string
		stage int
		want  int
	}{
		{"negative", -3, 0},
		{"in range", 1, 1},
		{"past the end", 9, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newThiefEngine(t, clock.NewFake(epoch), &fired{}, time.Second, time.Second)
			require.True(t, e.Resume("p1", theft{}, tt.stage))
			assert.False(t, e.Resume("p1", theft{}, 0), "live case is kept")
			c, _ := e.Get("p1")
			assert.Equal(t, tt.want, c.Stage)
		})
	}
}

func TestEngine_Observe(t *testing.T) {
	clk := clock.NewFake(epoch)
	f := &fired{}
	e := newThiefEngine(t, clk, f, 10*time.Second, 10*time.Second)

	p1 := core.ParseIdentitySet("EOS: p1")
	p2 := core.ParseIdentitySet("EOS: p2")
	e.Detect(p1.Primary(), theft{class: "BP_T72"})
	e.Detect(p2.Primary(), theft{class: "BP_T72"})

	// Wrong event type is ignored.
	assert.Equal(t, 0, e.Observe(&core.PossessEvent{Possession: core.Possession{Identity: p1, ClassName: "BP_T72"}}))

	// Different class does not satisfy the predicate.
	assert.Equal(t, 0, e.Observe(&core.UnpossessEvent{Possession: core.Possession{Identity: p1, ClassName: "BP_BTR80"}}))

	n := e.Observe(&core.UnpossessEvent{Possession: core.Possession{Identity: p1, ClassName: "BP_T72"}})
	assert.Equal(t, 1, n)
	assert.False(t, e.Active(p1.Primary()))
	assert.True(t, e.Active(p2.Primary()))

	clk.Advance(time.Minute)
	assert.Equal(t, []string{"warn:" + p2.Primary(), "kill:" + p2.Primary()}, f.list())
}

func TestEngine_SingleStageIsTerminal(t *testing.T) {
	clk := clock.NewFake(epoch)
	var calls int
	e, err := New(Config[int, struct{}]{
		Name:   "once",
		Stages: []Stage[int, struct{}]{{Delay: time.Second, Action: func(int, struct{}) { calls++ }}},
		Clock:  clk,
	})
	require.NoError(t, err)

	e.Detect(7, struct{}{})
	clk.Advance(time.Second)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, e.Len())
}

func TestEngine_ActionMayClearItself(t *testing.T) {
	clk := clock.NewFake(epoch)
	var e *Engine[string, int]
	var terminal bool
	e, err := New(Config[string, int]{
		Name: "self",
		Stages: []Stage[string, int]{
			{Delay: time.Second, Action: func(k string, _ int) { e.Clear(k) }},
			{Delay: time.Second, Action: func(string, int) { terminal = true }},
		},
		Clock: clk,
	})
	require.NoError(t, err)

	e.Detect("s", 0)
	clk.Advance(time.Minute)

	assert.False(t, terminal)
	assert.Equal(t, 0, clk.Pending())
}

func TestEngine_Remaining(t *testing.T) {
	clk := clock.NewFake(epoch)
	e := newThiefEngine(t, clk, &fired{}, 10*time.Second, 20*time.Second)

	e.Detect("p1", theft{})
	assert.Equal(t, 30*time.Second, e.Remaining("p1"))

	clk.Advance(12 * time.Second)
	assert.Equal(t, 18*time.Second, e.Remaining("p1"))
	assert.Equal(t, time.Duration(0), e.Remaining("nobody"))
}

func TestEngine_ResetCancelsEverything(t *testing.T) {
	clk := clock.NewFake(epoch)
	f := &fired{}
	e := newThiefEngine(t, clk, f, time.Second, time.Second)

	e.Detect("a", theft{})
	e.Detect("b", theft{})
	e.Reset()

	clk.Advance(time.Minute)
	assert.Empty(t, f.list())
	assert.Equal(t, 0, e.Len())
	assert.Empty(t, e.Keys())
}

func TestEngine_RecordsTransitions(t *testing.T) {
	clk := clock.NewFake(epoch)
	rec := &mockRecorder{}
	e, err := New(Config[string, int]{
		Name: "lock",
		Stages: []Stage[string, int]{
			{Delay: time.Second},
			{Delay: time.Second},
		},
		Clock:    clk,
		Recorder: rec,
		RoundID:  func() string { return "round-1" },
	})
	require.NoError(t, err)

	e.Detect("1:3", 0)
	clk.Advance(2 * time.Second)
	e.Detect("2:4", 0)
	e.Clear("2:4")

	assert.Equal(t, []string{
		core.TransitionOpened, core.TransitionEscalated, core.TransitionTerminal,
		core.TransitionOpened, core.TransitionCleared,
	}, rec.transitions())
	assert.Equal(t, "round-1", rec.records[0].RoundID)
	assert.Equal(t, "1:3", rec.records[0].Subject)
}

func TestEngine_ConcurrentTimersSerialized(t *testing.T) {
	var mu sync.Mutex
	ser := serialFunc(func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	})

	done := make(chan struct{}, 20)
	e, err := New(Config[int, int]{
		Name:   "real",
		Stages: []Stage[int, int]{{Delay: time.Millisecond, Action: func(int, int) { done <- struct{}{} }}},
		Clock:  clock.Real(),
		Serial: ser,
	})
	require.NoError(t, err)

	mu.Lock()
	for i := 0; i < 20; i++ {
		e.Detect(i, i)
	}
	mu.Unlock()

	for i := 0; i < 20; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("terminal action did not fire")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, e.Len())
}

type serialFunc func(fn func())

func (s serialFunc) Do(fn func()) { s(fn) }
