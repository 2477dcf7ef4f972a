package recording

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyRunning reports that a capture engine instance is already active
// for the current iteration. Recoverable: the caller backs off and retries.
var ErrAlreadyRunning = errors.New("recording is already running")

// State tracks whether a capture engine instance is currently active and
// carries the cancellation for that instance. It is shared between the
// supervisor, the spawned engine task, and the HTTP server's health snapshot;
// every access goes through the lock.
//
// Invariant: running is true exactly while an engine task has been spawned
// for the current iteration and has not yet been reset.
type State struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewState creates an idle recording state.
func NewState() *State {
	return &State{}
}

// TryStart atomically claims the state for a new iteration. If an iteration
// is already running it returns ErrAlreadyRunning without mutating anything;
// otherwise it flips to running and returns a fresh context that the engine
// task must observe for cancellation.
func (s *State) TryStart(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(parent)
	s.running = true
	s.cancel = cancel
	return ctx, nil
}

// Cancel requests cooperative cancellation of the active engine instance.
// Idempotent: calling it repeatedly, or while idle, is a no-op beyond the
// first effective call.
func (s *State) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Reset clears the state back to idle, making it eligible for the next
// TryStart. Any leftover cancellation is released so the iteration context
// cannot leak.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
}

// IsRunning reports whether a capture engine instance is active. Used by the
// health endpoint snapshot.
func (s *State) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
