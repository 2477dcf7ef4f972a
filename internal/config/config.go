package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the daemon configuration. Values come from the config file,
// CHRONICLE_* environment variables, and command line flags, in increasing
// priority.
type Config struct {
	// FPS is the continuous screen capture rate. 1 FPS is roughly 30 GB of
	// frames per month; tune to taste.
	FPS float64 `mapstructure:"fps" yaml:"fps"`

	// AudioChunkDuration is the length of each recorded audio chunk in
	// seconds.
	AudioChunkDuration int `mapstructure:"audio_chunk_duration" yaml:"audio_chunk_duration"`

	// Port the HTTP server listens on.
	Port int `mapstructure:"port" yaml:"port"`

	// DataDir is the base directory for the database, frames, audio chunks
	// and logs. Defaults to $HOME/.chronicle.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// DisableAudio skips audio device selection entirely.
	DisableAudio bool `mapstructure:"disable_audio" yaml:"disable_audio"`

	// SelfHealing lets the resource monitor restart the capture engine when
	// the process looks unhealthy.
	SelfHealing bool `mapstructure:"self_healing" yaml:"self_healing"`

	// AudioDevices selects capture devices explicitly, in the "name (input)"
	// format printed by the devices command. Empty means use defaults.
	AudioDevices []string `mapstructure:"audio_devices" yaml:"audio_devices"`

	// SaveTextFiles writes recognized text next to each frame image.
	SaveTextFiles bool `mapstructure:"save_text_files" yaml:"save_text_files"`

	// CloudAudio enables remote audio processing for recorded chunks.
	CloudAudio bool `mapstructure:"cloud_audio" yaml:"cloud_audio"`

	// OCREngine selects the OCR implementation. Currently "tesseract".
	OCREngine string `mapstructure:"ocr_engine" yaml:"ocr_engine"`

	// WearableUID, when set, tags captured data for the wearable
	// integration.
	WearableUID string `mapstructure:"wearable_uid" yaml:"wearable_uid"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		FPS:                1.0,
		AudioChunkDuration: 30,
		Port:               3030,
		OCREngine:          "tesseract",
	}
}

// Load reads the configuration from configFile (optional) with environment
// overrides, validates it and returns it. A missing file is not an error;
// the defaults apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHRONICLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Every key gets a default so viper knows about it; AutomaticEnv only
	// surfaces CHRONICLE_* values for registered keys.
	defaults := Default()
	v.SetDefault("fps", defaults.FPS)
	v.SetDefault("audio_chunk_duration", defaults.AudioChunkDuration)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("disable_audio", defaults.DisableAudio)
	v.SetDefault("self_healing", defaults.SelfHealing)
	v.SetDefault("audio_devices", defaults.AudioDevices)
	v.SetDefault("save_text_files", defaults.SaveTextFiles)
	v.SetDefault("cloud_audio", defaults.CloudAudio)
	v.SetDefault("ocr_engine", defaults.OCREngine)
	v.SetDefault("wearable_uid", defaults.WearableUID)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(configFile); statErr == nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
			// File absent: defaults and environment only.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be > 0, got: %g", c.FPS)
	}
	if c.AudioChunkDuration <= 0 {
		return fmt.Errorf("audio_chunk_duration must be > 0, got: %d", c.AudioChunkDuration)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", c.Port)
	}
	switch strings.ToLower(c.OCREngine) {
	case "", "tesseract":
	default:
		return fmt.Errorf("ocr_engine must be 'tesseract', got: %s", c.OCREngine)
	}
	for i, spec := range c.AudioDevices {
		if strings.TrimSpace(spec) == "" {
			return fmt.Errorf("audio_devices[%d] must not be empty", i)
		}
	}
	return nil
}

// BaseDir resolves the base data directory and ensures the data
// subdirectory exists. An unresolvable base directory is fatal at startup.
func (c *Config) BaseDir() (string, error) {
	base := c.DataDir
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".chronicle")
	}
	base = expandPath(base)

	if err := os.MkdirAll(filepath.Join(base, "data"), 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return base, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
