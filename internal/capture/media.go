package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chroniclehq/chronicle/internal/device"
)

// FindFFmpeg locates the ffmpeg binary on PATH. The daemon refuses to start
// without it.
func FindFFmpeg() (string, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return path, nil
}

// Grabber captures a single screen frame into a directory and returns the
// image path.
type Grabber interface {
	Grab(ctx context.Context, dir string) (string, error)
}

// OCR extracts text from a captured frame image.
type OCR interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// AudioSource records one fixed-duration chunk from a device and returns the
// file path.
type AudioSource interface {
	Capture(ctx context.Context, d device.Device, dir string, duration time.Duration) (string, error)
}

// FFmpegGrabber captures the screen through ffmpeg's platform grab device.
type FFmpegGrabber struct{}

// Grab writes one frame as PNG into dir.
func (FFmpegGrabber) Grab(ctx context.Context, dir string) (string, error) {
	out := filepath.Join(dir, fmt.Sprintf("frame_%d.png", time.Now().UnixNano()))

	var args []string
	switch runtime.GOOS {
	case "darwin":
		args = []string{"-y", "-f", "avfoundation", "-i", "1:none", "-frames:v", "1", out}
	default:
		display := os.Getenv("DISPLAY")
		if display == "" {
			display = ":0.0"
		}
		args = []string{"-y", "-f", "x11grab", "-i", display, "-frames:v", "1", out}
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg screen grab failed: %w (output: %s)", err, truncate(string(output)))
	}
	return out, nil
}

// TesseractOCR runs local OCR through the tesseract binary.
type TesseractOCR struct{}

// Recognize extracts text from the image.
func (TesseractOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, "tesseract", imagePath, "stdout")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract failed for %s: %w", imagePath, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// NewOCR selects an OCR implementation by name. Tesseract is the local
// default; unknown engines fall back to it with a warning.
func NewOCR(engine string) OCR {
	switch strings.ToLower(engine) {
	case "", "tesseract":
		return TesseractOCR{}
	default:
		slog.Warn("Unknown OCR engine, falling back to tesseract", "engine", engine)
		return TesseractOCR{}
	}
}

// FFmpegAudioSource records audio chunks from the sound server through
// ffmpeg.
type FFmpegAudioSource struct{}

// Capture records duration seconds of audio from the device into dir as WAV.
func (FFmpegAudioSource) Capture(ctx context.Context, d device.Device, dir string, duration time.Duration) (string, error) {
	out := filepath.Join(dir, fmt.Sprintf("%s_%d.wav", sanitize(d.Name), time.Now().UnixNano()))

	args := []string{
		"-y",
		"-f", "pulse",
		"-i", d.Name,
		"-t", fmt.Sprintf("%.0f", duration.Seconds()),
		out,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg audio capture failed for %s: %w (output: %s)", d.Name, err, truncate(string(output)))
	}
	return out, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
