// Package media wraps ffmpeg and ffprobe for probing, frame sampling and audio demuxing.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes an external media tool and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools with os/exec.
type ExecRunner struct{}

// Run executes name with args. On failure the error includes the tool's stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// Config holds tool locations and the temp directory for produced files.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string // empty uses os.TempDir()
}

// FFmpeg invokes ffmpeg and ffprobe through a Runner.
type FFmpeg struct {
	runner  Runner
	ffmpeg  string
	ffprobe string
	tempDir string
}

// New creates an FFmpeg wrapper. A nil runner uses ExecRunner.
func New(cfg *Config, runner Runner) *FFmpeg {
	if runner == nil {
		runner = ExecRunner{}
	}
	ff := &FFmpeg{
		runner:  runner,
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		tempDir: os.TempDir(),
	}
	if cfg != nil {
		if cfg.FFmpegPath != "" {
			ff.ffmpeg = cfg.FFmpegPath
		}
		if cfg.FFprobePath != "" {
			ff.ffprobe = cfg.FFprobePath
		}
		if cfg.TempDir != "" {
			ff.tempDir = cfg.TempDir
		}
	}
	return ff
}

// CheckTools verifies that ffmpeg and ffprobe can be found.
func (f *FFmpeg) CheckTools() error {
	for _, tool := range []string{f.ffmpeg, f.ffprobe} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", tool, err)
		}
	}
	return nil
}

// tempFile reserves a fresh, empty temp file with the given name pattern.
func (f *FFmpeg) tempFile(pattern string) (string, error) {
	if err := os.MkdirAll(f.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	tmp, err := os.CreateTemp(f.tempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// nonEmptyFile reports whether path exists and has content.
func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
