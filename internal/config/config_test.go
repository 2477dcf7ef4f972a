package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got: %v", err)
	}
	if cfg.FPS != 1.0 {
		t.Errorf("Expected default fps 1.0, got: %g", cfg.FPS)
	}
	if cfg.AudioChunkDuration != 30 {
		t.Errorf("Expected default audio_chunk_duration 30, got: %d", cfg.AudioChunkDuration)
	}
	if cfg.Port != 3030 {
		t.Errorf("Expected default port 3030, got: %d", cfg.Port)
	}
	if cfg.OCREngine != "tesseract" {
		t.Errorf("Expected default ocr_engine tesseract, got: %s", cfg.OCREngine)
	}
}

func TestLoad_FromFile(t *testing.T) {
	content := `fps: 0.5
audio_chunk_duration: 60
port: 8080
self_healing: true
audio_devices:
  - "usb-mic (input)"
`
	path := filepath.Join(t.TempDir(), "chronicle.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.FPS != 0.5 {
		t.Errorf("Expected fps 0.5, got: %g", cfg.FPS)
	}
	if cfg.AudioChunkDuration != 60 {
		t.Errorf("Expected audio_chunk_duration 60, got: %d", cfg.AudioChunkDuration)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected port 8080, got: %d", cfg.Port)
	}
	if !cfg.SelfHealing {
		t.Error("Expected self_healing true")
	}
	if len(cfg.AudioDevices) != 1 || cfg.AudioDevices[0] != "usb-mic (input)" {
		t.Errorf("Unexpected audio_devices: %v", cfg.AudioDevices)
	}
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("CHRONICLE_DATA_DIR", "/var/lib/chronicle")
	t.Setenv("CHRONICLE_SELF_HEALING", "true")
	t.Setenv("CHRONICLE_DISABLE_AUDIO", "true")
	t.Setenv("CHRONICLE_FPS", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.DataDir != "/var/lib/chronicle" {
		t.Errorf("Expected data_dir from environment, got: %q", cfg.DataDir)
	}
	if !cfg.SelfHealing {
		t.Error("Expected self_healing from environment")
	}
	if !cfg.DisableAudio {
		t.Error("Expected disable_audio from environment")
	}
	if cfg.FPS != 2.5 {
		t.Errorf("Expected fps 2.5 from environment, got: %g", cfg.FPS)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	content := `data_dir: /from/file
port: 8080
`
	path := filepath.Join(t.TempDir(), "chronicle.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("CHRONICLE_DATA_DIR", "/from/env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.DataDir != "/from/env" {
		t.Errorf("Expected environment to override file, got: %q", cfg.DataDir)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected file value for unset env key, got: %d", cfg.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("fps: [not closed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed config file")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"zero fps", func(c *Config) { c.FPS = 0 }, "fps"},
		{"negative chunk", func(c *Config) { c.AudioChunkDuration = -1 }, "audio_chunk_duration"},
		{"port too high", func(c *Config) { c.Port = 70000 }, "port"},
		{"unknown ocr engine", func(c *Config) { c.OCREngine = "easyocr" }, "ocr_engine"},
		{"blank device", func(c *Config) { c.AudioDevices = []string{"  "} }, "audio_devices"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("Expected error mentioning %q, got: %v", tc.wantSub, err)
			}
		})
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got: %v", err)
	}
}

func TestBaseDir_CreatesDataSubdir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "chronicle-home")

	base, err := cfg.BaseDir()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if base != cfg.DataDir {
		t.Errorf("Expected base %s, got: %s", cfg.DataDir, base)
	}
	info, err := os.Stat(filepath.Join(base, "data"))
	if err != nil || !info.IsDir() {
		t.Errorf("Expected data subdirectory to exist, got: %v", err)
	}
}
