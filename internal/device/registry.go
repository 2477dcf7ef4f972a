package device

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Enumerator lists the audio endpoints available on the host.
type Enumerator interface {
	List() ([]Device, error)
	DefaultInput() (Device, error)
	DefaultOutput() (Device, error)
}

// Registry owns the set of known capture devices and their control status.
// The status map backs the device-status endpoint; the active list is the
// set of devices the supervisor schedules activation commands for.
type Registry struct {
	mu     sync.RWMutex
	status map[Device]Control
	active []Device
}

// NewRegistry enumerates available devices through enum and records every
// one of them with an initial status of not running.
func NewRegistry(enum Enumerator) (*Registry, error) {
	all, err := enum.List()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	r := &Registry{status: make(map[Device]Control)}
	for _, d := range all {
		r.status[d] = Control{IsRunning: false, IsPaused: false}
		slog.Info("Found audio device", "device", d.String())
	}
	return r, nil
}

// SelectDevices marks the devices to capture from. When specs is empty the
// enumerator's default input (and, when available, default output) device is
// used. Selected devices get an initial running status; everything else keeps
// the not-running status from enumeration.
func (r *Registry) SelectDevices(enum Enumerator, specs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = nil

	if len(specs) == 0 {
		slog.Debug("Using default audio devices")
		if in, err := enum.DefaultInput(); err == nil {
			r.activateLocked(in)
		} else {
			slog.Warn("No default input device available", "error", err)
		}
		if out, err := enum.DefaultOutput(); err == nil {
			r.activateLocked(out)
		}
		return nil
	}

	for _, spec := range specs {
		d, err := Parse(spec)
		if err != nil {
			return fmt.Errorf("invalid audio device %q: %w", spec, err)
		}
		r.activateLocked(d)
	}
	return nil
}

func (r *Registry) activateLocked(d Device) {
	r.active = append(r.active, d)
	r.status[d] = Control{IsRunning: true, IsPaused: false}
}

// Active returns a copy of the devices selected for capture.
func (r *Registry) Active() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, len(r.active))
	copy(out, r.active)
	return out
}

// Status returns a snapshot of every known device and its control status.
func (r *Registry) Status() map[Device]Control {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Device]Control, len(r.status))
	for d, c := range r.status {
		out[d] = c
	}
	return out
}

// SetStatus records a new control status for a device. Used by the HTTP
// server when a device is toggled externally.
func (r *Registry) SetStatus(d Device, c Control) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[d] = c
}

// PulseEnumerator lists audio devices through the PulseAudio/PipeWire
// command line tools, the same way recording tools shell out for device
// discovery.
type PulseEnumerator struct{}

// List returns every source (input) and sink (output) known to the sound
// server.
func (PulseEnumerator) List() ([]Device, error) {
	var devices []Device

	sources, err := pactlNames("sources")
	if err != nil {
		return nil, err
	}
	for _, name := range sources {
		// Monitor sources mirror a sink; they are reported as outputs
		// because they capture what the machine plays.
		kind := KindInput
		if strings.HasSuffix(name, ".monitor") {
			kind = KindOutput
		}
		devices = append(devices, Device{Name: name, Kind: kind})
	}

	return devices, nil
}

// DefaultInput returns the sound server's default capture source.
func (PulseEnumerator) DefaultInput() (Device, error) {
	name, err := pactlDefault("default-source")
	if err != nil {
		return Device{}, err
	}
	return Device{Name: name, Kind: KindInput}, nil
}

// DefaultOutput returns the monitor of the default sink, which captures
// system playback.
func (PulseEnumerator) DefaultOutput() (Device, error) {
	name, err := pactlDefault("default-sink")
	if err != nil {
		return Device{}, err
	}
	return Device{Name: name + ".monitor", Kind: KindOutput}, nil
}

func pactlNames(kind string) ([]string, error) {
	cmd := exec.Command("pactl", "list", "short", kind)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	var names []string
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			names = append(names, fields[1])
		}
	}
	return names, nil
}

func pactlDefault(what string) (string, error) {
	cmd := exec.Command("pactl", "get-"+what)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", what, err)
	}
	name := strings.TrimSpace(string(output))
	if name == "" {
		return "", fmt.Errorf("no %s configured", what)
	}
	return name, nil
}
