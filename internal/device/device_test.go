package device

import (
	"strings"
	"testing"
)

func TestParse_InputSpec(t *testing.T) {
	d, err := Parse("alsa_input.usb-mic (input)")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if d.Name != "alsa_input.usb-mic" {
		t.Errorf("Expected name 'alsa_input.usb-mic', got: %s", d.Name)
	}
	if d.Kind != KindInput {
		t.Errorf("Expected input kind, got: %s", d.Kind)
	}
}

func TestParse_OutputSpec(t *testing.T) {
	d, err := Parse("alsa_output.hdmi.monitor (output)")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if d.Name != "alsa_output.hdmi.monitor" {
		t.Errorf("Expected name 'alsa_output.hdmi.monitor', got: %s", d.Name)
	}
	if d.Kind != KindOutput {
		t.Errorf("Expected output kind, got: %s", d.Kind)
	}
}

func TestParse_BareNameDefaultsToInput(t *testing.T) {
	d, err := Parse("built-in-mic")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if d.Kind != KindInput {
		t.Errorf("Expected bare name to default to input, got: %s", d.Kind)
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("   ")
	if err == nil {
		t.Error("Expected error for empty specification")
	}
}

func TestParse_KindOnly(t *testing.T) {
	_, err := Parse("(output)")
	if err == nil {
		t.Error("Expected error for specification with no name")
	}
	if err != nil && !strings.Contains(err.Error(), "no name") {
		t.Errorf("Expected 'no name' error, got: %v", err)
	}
}

func TestParse_RoundTripsString(t *testing.T) {
	original := Device{Name: "usb-headset.monitor", Kind: KindOutput}
	parsed, err := Parse(original.String())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if parsed != original {
		t.Errorf("Expected %v after round trip, got: %v", original, parsed)
	}
}
