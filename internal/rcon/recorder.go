package rcon

import (
	"context"
	"sync"

	"github.com/squadwarden/warden/pkg/core"
)

// Recorder is an in-memory Controller that keeps every request. The replay
// command prints from it and tests assert against it.
type Recorder struct {
	ActionFunc

	mu      sync.Mutex
	actions []core.Action
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.ActionFunc = r.record
	return r
}

func (r *Recorder) record(_ context.Context, a core.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	return nil
}

// Actions returns a copy of the recorded requests in order.
func (r *Recorder) Actions() []core.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Action(nil), r.actions...)
}

// Of returns the recorded requests of one kind.
func (r *Recorder) Of(kind core.ActionKind) []core.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Action
	for _, a := range r.actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// WarningsTo returns the warning texts sent to a player.
func (r *Recorder) WarningsTo(playerID string) []string {
	var out []string
	for _, a := range r.Of(core.ActionWarn) {
		if a.PlayerID == playerID {
			out = append(out, a.Message)
		}
	}
	return out
}

// Reset forgets all recorded requests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = nil
}
