package recording

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chroniclehq/chronicle/internal/device"
)

const (
	// DefaultRetryBackoff is how long the supervisor waits before retrying
	// after TryStart reported busy.
	DefaultRetryBackoff = 30 * time.Second

	// DefaultActivationDelay caps how long an activation producer waits for
	// the engine's readiness signal before publishing anyway. Carried over
	// from the daemon's original fixed startup delay.
	DefaultActivationDelay = 15 * time.Second
)

// Engine is the long-running capture task. The supervisor treats it as an
// opaque operation: it consumes the control bus, signals readiness by closing
// ready once it accepts device commands, observes ctx for cooperative
// cancellation, and returns success or a failure reason. Failures are never
// fatal to the supervisor.
type Engine interface {
	Run(ctx context.Context, bus *device.ControlBus, ready chan<- struct{}) error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, bus *device.ControlBus, ready chan<- struct{}) error

func (f EngineFunc) Run(ctx context.Context, bus *device.ControlBus, ready chan<- struct{}) error {
	return f(ctx, bus, ready)
}

// Supervisor owns the capture engine lifecycle: it enforces the
// single-instance invariant through the shared State, fans activation
// commands out to the control bus, and races each engine run against
// restart signals from the resource monitor.
type Supervisor struct {
	state   *State
	bus     *device.ControlBus
	engine  Engine
	restart <-chan struct{}
	devices []device.Device

	// Both durations are fixed in production and injectable for tests.
	retryBackoff    time.Duration
	activationDelay time.Duration
}

// NewSupervisor wires a supervisor over the shared state, the control bus,
// the engine and the restart-signal channel. The devices are the endpoints
// that receive an activation command at the start of every iteration.
func NewSupervisor(state *State, bus *device.ControlBus, engine Engine, restart <-chan struct{}, devices []device.Device) *Supervisor {
	return &Supervisor{
		state:           state,
		bus:             bus,
		engine:          engine,
		restart:         restart,
		devices:         devices,
		retryBackoff:    DefaultRetryBackoff,
		activationDelay: DefaultActivationDelay,
	}
}

// SetTimings overrides the busy-retry backoff and the activation delay cap.
func (s *Supervisor) SetTimings(retryBackoff, activationDelay time.Duration) {
	s.retryBackoff = retryBackoff
	s.activationDelay = activationDelay
}

// Run executes the supervisor loop until ctx is cancelled. Engine errors are
// logged and never escalated; every iteration ends in Reset regardless of
// whether the engine completed or a restart signal won the race.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		iterCtx, err := s.state.TryStart(ctx)
		if err != nil {
			slog.Warn("Recording is already running, waiting before retry", "backoff", s.retryBackoff)
			select {
			case <-time.After(s.retryBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		ready := make(chan struct{})
		s.scheduleActivation(iterCtx, ready)

		done := make(chan error, 1)
		go func() {
			done <- s.engine.Run(iterCtx, s.bus, ready)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Capture engine error", "error", err)
			} else {
				slog.Debug("Capture engine finished")
			}
		case <-s.restart:
			slog.Info("Restart signal received, cancelling capture engine")
			// Cooperative only: the engine is expected to observe the
			// iteration context and drain on its own.
			s.state.Cancel()
		case <-ctx.Done():
			s.state.Cancel()
			s.state.Reset()
			return
		}

		s.state.Reset()
	}
}

// scheduleActivation spawns one producer per device. Each producer waits for
// the engine's readiness signal, capped by the legacy fixed delay in case an
// engine never signals, then publishes the activation command. Producers for
// a cancelled iteration publish nothing.
func (s *Supervisor) scheduleActivation(ctx context.Context, ready <-chan struct{}) {
	for _, d := range s.devices {
		d := d
		go func() {
			select {
			case <-ready:
			case <-time.After(s.activationDelay):
			case <-ctx.Done():
				return
			}
			s.bus.Publish(d, device.Control{IsRunning: true, IsPaused: false})
			slog.Debug("Published device activation", "device", d.String())
		}()
	}
}
