package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chroniclehq/chronicle/internal/capture"
	"github.com/chroniclehq/chronicle/internal/device"
	"github.com/chroniclehq/chronicle/internal/monitor"
	"github.com/chroniclehq/chronicle/internal/recording"
	"github.com/chroniclehq/chronicle/internal/server"
	"github.com/chroniclehq/chronicle/internal/storage"
)

const (
	monitorPollInterval = 10 * time.Second
	monitorThreshold    = 3

	// The capture engine is considered stalled when nothing has been stored
	// for this long while recording is supposed to be running.
	activityStaleAfter = 2 * time.Minute
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run the capture daemon",
	Long: `Run the continuous capture daemon: the recording supervisor, the capture
engine, the resource monitor and the HTTP query server. The daemon runs until
interrupted; engine failures and restarts never take the query server down.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRecordFlags(cmd)

		if _, err := capture.FindFFmpeg(); err != nil {
			return fmt.Errorf("ffmpeg is required: %w", err)
		}

		baseDir, err := cfg.BaseDir()
		if err != nil {
			return err
		}
		setupDaemonLogging(baseDir, verboseLevel)

		enum := device.PulseEnumerator{}
		registry, err := device.NewRegistry(enum)
		if err != nil {
			return err
		}
		if !cfg.DisableAudio {
			if err := registry.SelectDevices(enum, cfg.AudioDevices); err != nil {
				return err
			}
		}

		store, err := storage.Open(filepath.Join(baseDir, "db.sqlite"))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		slog.Info("Database initialized", "dir", baseDir)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		state := recording.NewState()
		bus := device.NewControlBus()

		restart := monitor.NewRestartChannel()
		probe := stalledCaptureProbe(store, state)
		mon := monitor.NewResourceMonitor(cfg.SelfHealing, probe, monitorThreshold, restart)
		mon.StartMonitoring(ctx, monitorPollInterval)

		engine := capture.New(capture.Options{
			Store:              store,
			DataDir:            filepath.Join(baseDir, "data"),
			FPS:                cfg.FPS,
			AudioChunkDuration: time.Duration(cfg.AudioChunkDuration) * time.Second,
			SaveTextFiles:      cfg.SaveTextFiles,
			CloudAudio:         cfg.CloudAudio,
			OCREngine:          cfg.OCREngine,
			WearableUID:        cfg.WearableUID,
		}, nil, nil, nil)

		supervisor := recording.NewSupervisor(state, bus, engine, restart, registry.Active())
		go supervisor.Run(ctx)

		srv := server.New(store, state, registry, bus, fmt.Sprintf(":%d", cfg.Port))
		go func() {
			if err := srv.Start(); err != nil {
				slog.Error("HTTP server failed", "error", err)
			}
		}()
		slog.Info("Server started", "url", fmt.Sprintf("http://localhost:%d", cfg.Port))

		<-ctx.Done()
		slog.Info("Shutting down")
		return nil
	},
}

func init() {
	recordCmd.Flags().Float64("fps", 0, "screen capture frames per second (overrides config)")
	recordCmd.Flags().Int("audio-chunk-duration", 0, "audio chunk duration in seconds (overrides config)")
	recordCmd.Flags().Int("port", 0, "HTTP server port (overrides config)")
	recordCmd.Flags().Bool("disable-audio", false, "disable audio recording")
	recordCmd.Flags().Bool("self-healing", false, "restart recording automatically on unhealthy state")
	recordCmd.Flags().StringSlice("audio-device", nil, "audio device to use (repeatable)")
	recordCmd.Flags().String("data-dir", "", "data directory (default $HOME/.chronicle)")
	recordCmd.Flags().Bool("save-text-files", false, "save recognized text next to frame images")
	recordCmd.Flags().Bool("cloud-audio", false, "enable remote audio processing")
	recordCmd.Flags().String("ocr-engine", "", "OCR engine to use")
	recordCmd.Flags().String("wearable-uid", "", "UID for the wearable integration")
}

// applyRecordFlags overlays explicitly set command line flags on the loaded
// configuration.
func applyRecordFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("fps") {
		cfg.FPS, _ = cmd.Flags().GetFloat64("fps")
	}
	if cmd.Flags().Changed("audio-chunk-duration") {
		cfg.AudioChunkDuration, _ = cmd.Flags().GetInt("audio-chunk-duration")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("disable-audio") {
		cfg.DisableAudio, _ = cmd.Flags().GetBool("disable-audio")
	}
	if cmd.Flags().Changed("self-healing") {
		cfg.SelfHealing, _ = cmd.Flags().GetBool("self-healing")
	}
	if cmd.Flags().Changed("audio-device") {
		cfg.AudioDevices, _ = cmd.Flags().GetStringSlice("audio-device")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("save-text-files") {
		cfg.SaveTextFiles, _ = cmd.Flags().GetBool("save-text-files")
	}
	if cmd.Flags().Changed("cloud-audio") {
		cfg.CloudAudio, _ = cmd.Flags().GetBool("cloud-audio")
	}
	if cmd.Flags().Changed("ocr-engine") {
		cfg.OCREngine, _ = cmd.Flags().GetString("ocr-engine")
	}
	if cmd.Flags().Changed("wearable-uid") {
		cfg.WearableUID, _ = cmd.Flags().GetString("wearable-uid")
	}
}

// setupDaemonLogging routes logs to both stderr and a rotating log file in
// the data directory.
func setupDaemonLogging(baseDir string, level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(baseDir, "chronicle.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	writer := io.MultiWriter(os.Stderr, logFile)
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}

// stalledCaptureProbe reports unhealthy when recording claims to be running
// but nothing new has reached storage for a while.
func stalledCaptureProbe(store *storage.Store, state *recording.State) monitor.Probe {
	started := time.Now()
	return func() bool {
		if !state.IsRunning() {
			return true
		}
		last, err := store.LastActivity(context.Background())
		if err != nil {
			slog.Warn("Health probe failed to read storage", "error", err)
			return true
		}
		if last.IsZero() {
			// Nothing stored yet; allow a startup grace period.
			return time.Since(started) < activityStaleAfter
		}
		return time.Since(last) < activityStaleAfter
	}
}
