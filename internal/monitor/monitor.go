package monitor

import (
	"context"
	"log/slog"
	"time"
)

// RestartChannelCapacity bounds the restart-signal channel. Signals beyond
// capacity are dropped rather than blocking the monitor tick.
const RestartChannelCapacity = 10

// NewRestartChannel creates the bounded channel that carries restart
// requests from the monitor to the recording supervisor.
func NewRestartChannel() chan struct{} {
	return make(chan struct{}, RestartChannelCapacity)
}

// Probe evaluates process health. It must be cheap: it runs on every
// monitoring tick.
type Probe func() bool

// ResourceMonitor periodically evaluates process health and, once the
// process has been unhealthy for a threshold of consecutive evaluations,
// emits exactly one restart signal for the episode. The counter re-arms only
// after the probe reports healthy again, so a long unhealthy stretch cannot
// flood the supervisor with signals.
type ResourceMonitor struct {
	selfHealing bool
	probe       Probe
	threshold   int
	restart     chan<- struct{}

	unhealthy int
	signalled bool
}

// NewResourceMonitor creates a monitor. When selfHealing is false the
// monitor still evaluates and logs health but never emits restart signals.
func NewResourceMonitor(selfHealing bool, probe Probe, threshold int, restart chan<- struct{}) *ResourceMonitor {
	return &ResourceMonitor{
		selfHealing: selfHealing,
		probe:       probe,
		threshold:   threshold,
		restart:     restart,
	}
}

// StartMonitoring begins periodic health evaluation until ctx is cancelled.
func (m *ResourceMonitor) StartMonitoring(ctx context.Context, pollInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Evaluate()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Evaluate runs one health check and applies the episode logic. Exported so
// tests can drive the monitor without real time.
func (m *ResourceMonitor) Evaluate() {
	if m.probe() {
		if m.unhealthy > 0 {
			slog.Info("Process recovered to healthy state", "after_checks", m.unhealthy)
		}
		m.unhealthy = 0
		m.signalled = false
		return
	}

	m.unhealthy++
	slog.Warn("Unhealthy state detected", "consecutive", m.unhealthy, "threshold", m.threshold)

	if m.unhealthy < m.threshold || m.signalled {
		return
	}
	m.signalled = true

	if !m.selfHealing {
		slog.Warn("Self healing disabled, not requesting restart")
		return
	}

	select {
	case m.restart <- struct{}{}:
		slog.Info("Requested recording restart")
	default:
		slog.Warn("Restart channel full, dropping restart signal")
	}
}
