package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadwarden/warden/internal/dispatcher"
	"github.com/squadwarden/warden/internal/parser"
	"github.com/squadwarden/warden/internal/session"
	"github.com/squadwarden/warden/pkg/core"
)

const eosID = "0002a10186d9414496bf20d22d3860ba"

func possessLine(chain string) string {
	return "[2024.03.01-18.22.11:123][" + chain + "]LogSquadTrace: [DedicatedServer]ASQPlayerController::OnPossess(): " +
		"PC=Player1 (Online IDs: EOS: " + eosID + ") Pawn=BP_BTR82A_C_2147 " +
		"FullPath=BP_BTR82A_RUS_C_2147 /Game/Vehicles/BTR82A.BTR82A Seat Number=0"
}

func unpossessLine(chain, ids string) string {
	return "[2024.03.01-18.25.00:001][" + chain + "]LogSquadTrace: [DedicatedServer]OnUnPossess(): " +
		"PC=Player1 (Online IDs: " + ids + ") Exited Vehicle Pawn=X " +
		"FullPath=BP_BTR82A_RUS_C_2147 /Game/Vehicles Seat Number=0"
}

const roundEndedLine = "[2024.03.01-19.30.00:000][901]LogGameState: Match State Changed from InProgress to WaitingPostMatch"

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type captured struct {
	mu     sync.Mutex
	events []core.Event
}

func (c *captured) handle(ev core.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captured) snapshot() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Event(nil), c.events...)
}

func newPipeline(t *testing.T, types ...core.EventType) (*Pipeline, *captured, *session.Correlator) {
	t.Helper()
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	c := &captured{}
	for _, typ := range types {
		d.Register(typ, c.handle)
	}
	corr := session.New(nil)
	return NewPipeline(parser.NewParser(nil), corr, d, nil), c, corr
}

func TestHandleLine_CorrelatesSwitchPossess(t *testing.T) {
	tests := []struct {
		name       string
		unpossess  string
		wantSwitch bool
	}{
		{"same chain", unpossessLine("412", "EOS: "+eosID), true},
		{"other chain", unpossessLine("500", "EOS: "+eosID), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, c, corr := newPipeline(t, core.EventPossess, core.EventUnpossess)

			require.NoError(t, p.HandleLine(possessLine("412")))
			assert.Equal(t, 1, corr.Len())
			require.NoError(t, p.HandleLine(tt.unpossess))

			evs := c.snapshot()
			require.Len(t, evs, 2)
			un, ok := evs[1].(*core.UnpossessEvent)
			require.True(t, ok)
			assert.Equal(t, tt.wantSwitch, un.SwitchPossess)
			assert.Equal(t, 0, corr.Len())
		})
	}
}

func TestHandleLine_DropsUnresolvedUnpossess(t *testing.T) {
	p, c, _ := newPipeline(t, core.EventPossess, core.EventUnpossess)

	require.NoError(t, p.HandleLine(unpossessLine("412", "EOS: INVALID")))

	assert.Empty(t, c.snapshot())
	assert.Equal(t, Stats{Lines: 1, Dropped: 1}, p.Stats())
}

func TestHandleLine_IgnoresNoiseAndUnsubscribed(t *testing.T) {
	p, c, _ := newPipeline(t, core.EventPossess)

	require.NoError(t, p.HandleLine("[2024.03.01-18.22.11:123][412]LogNet: Join succeeded: Player1"))
	require.NoError(t, p.HandleLine(roundEndedLine))

	assert.Empty(t, c.snapshot())
	st := p.Stats()
	assert.Equal(t, int64(2), st.Lines)
	assert.Equal(t, int64(1), st.Events)
	assert.Zero(t, st.Failures)
}

func TestHandleLine_Malformed(t *testing.T) {
	p, _, _ := newPipeline(t, core.EventRoundEnded)

	err := p.HandleLine("[2024.13.45-99.99.99:000][900]LogGameState: Match State Changed from InProgress to WaitingPostMatch")
	require.Error(t, err)
	assert.Equal(t, int64(1), p.Stats().Malformed)
}

func TestPublish_HandlerFailure(t *testing.T) {
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	boom := errors.New("boom")
	d.Register(core.EventSquadList, func(core.Event) error { return boom })
	p := NewPipeline(parser.NewParser(nil), session.New(nil), d, nil)

	err = p.Publish(&core.SquadListSnapshot{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), p.Stats().Failures)
}

func TestObserve_SeesEventsBeforeDispatch(t *testing.T) {
	p, c, _ := newPipeline(t, core.EventRoundEnded)
	var seen []core.EventType
	p.Observe(func(ev core.Event) {
		assert.Empty(t, c.snapshot())
		seen = append(seen, ev.Type())
	})

	require.NoError(t, p.HandleLine(roundEndedLine))
	assert.Equal(t, []core.EventType{core.EventRoundEnded}, seen)
	assert.Len(t, c.snapshot(), 1)
}

func TestReplay(t *testing.T) {
	p, c, _ := newPipeline(t, core.EventPossess, core.EventUnpossess, core.EventRoundEnded)
	log := strings.Join([]string{
		possessLine("412"),
		"garbage",
		"[2024.13.45-99.99.99:000][900]LogGameState: Match State Changed from InProgress to WaitingPostMatch",
		unpossessLine("412", "EOS: "+eosID),
		roundEndedLine,
	}, "\r\n")

	require.NoError(t, p.Replay(context.Background(), strings.NewReader(log)))

	evs := c.snapshot()
	require.Len(t, evs, 3)
	assert.Equal(t, core.EventPossess, evs[0].Type())
	assert.Equal(t, core.EventUnpossess, evs[1].Type())
	assert.Equal(t, core.EventRoundEnded, evs[2].Type())
}

func TestReplay_Cancelled(t *testing.T) {
	p, _, _ := newPipeline(t, core.EventPossess)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Replay(ctx, strings.NewReader(possessLine("1")+"\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) handle(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

func (s *lineSink) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func startTailer(t *testing.T, cfg TailConfig) (*Tailer, *lineSink) {
	t.Helper()
	sink := &lineSink{}
	cfg.Interval = 10 * time.Millisecond
	tl := newTailer(cfg, sink.handle, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tl.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return tl, sink
}

func appendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestTailer_StartsAtEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SquadGame.log")
	appendTo(t, path, "old line\n")

	tl, sink := startTailer(t, TailConfig{Path: path})
	require.Eventually(t, func() bool { return tl.Offset() == int64(len("old line\n")) }, 2*time.Second, 5*time.Millisecond)

	appendTo(t, path, "new line\npartial")
	require.Eventually(t, func() bool { return len(sink.get()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"new line"}, sink.get())

	appendTo(t, path, " done\n")
	require.Eventually(t, func() bool { return len(sink.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "partial done", sink.get()[1])
}

func TestTailer_FromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SquadGame.log")
	appendTo(t, path, "a\nb\n")

	_, sink := startTailer(t, TailConfig{Path: path, FromStart: true})
	require.Eventually(t, func() bool { return len(sink.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, sink.get())
}

func TestTailer_WaitsForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SquadGame.log")

	_, sink := startTailer(t, TailConfig{Path: path})
	time.Sleep(30 * time.Millisecond)
	appendTo(t, path, "first\n")

	require.Eventually(t, func() bool { return len(sink.get()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "first", sink.get()[0])
}

func TestTailer_Truncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SquadGame.log")
	appendTo(t, path, "")

	tl, sink := startTailer(t, TailConfig{Path: path})
	appendTo(t, path, "one long line before restart\n")
	require.Eventually(t, func() bool { return len(sink.get()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, os.Truncate(path, 0))
	require.Eventually(t, func() bool { return tl.Offset() == 0 }, 2*time.Second, 5*time.Millisecond)

	appendTo(t, path, "after\n")
	require.Eventually(t, func() bool { return len(sink.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "after", sink.get()[1])
}

func TestTailer_String(t *testing.T) {
	assert.Equal(t, "log-tailer", newTailer(TailConfig{}, func(string) error { return nil }, nil).String())
}
