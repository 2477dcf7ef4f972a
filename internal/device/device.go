package device

import (
	"fmt"
	"strings"
)

// Kind identifies the direction of an audio endpoint.
type Kind string

const (
	KindInput  Kind = "input"
	KindOutput Kind = "output"
)

// Device identifies an audio capture endpoint. The identity is immutable;
// devices are passed by value and compared by equality.
type Device struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Kind)
}

// Control describes the desired operating mode for a device. A Control value
// is never mutated after construction; new intent is expressed by publishing
// a new value on the bus.
type Control struct {
	IsRunning bool `json:"is_running"`
	IsPaused  bool `json:"is_paused"`
}

// Parse resolves a device specification of the form "name (input)" or
// "name (output)" as printed by Device.String and the devices command.
// A bare name defaults to an input device.
func Parse(spec string) (Device, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return Device{}, fmt.Errorf("empty device specification")
	}

	kind := KindInput
	if strings.HasSuffix(s, "(input)") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "(input)"))
	} else if strings.HasSuffix(s, "(output)") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "(output)"))
		kind = KindOutput
	}

	if s == "" {
		return Device{}, fmt.Errorf("device specification %q has no name", spec)
	}

	return Device{Name: s, Kind: kind}, nil
}
