package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Static errors for media operations.
var (
	// ErrTooFewInputs is returned when fewer than two videos are given.
	ErrTooFewInputs = errors.New("at least 2 input videos are required")
	// ErrOutputMissing is returned when ffmpeg exits cleanly without producing output.
	ErrOutputMissing = errors.New("output file was not produced")
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// Compile-time check that FFmpegConcatenator implements Concatenator.
var _ Concatenator = (*FFmpegConcatenator)(nil)

// FFmpegConcatenator implements Concatenator with ffmpeg's concat demuxer.
type FFmpegConcatenator struct {
	ffmpegPath  string
	ffprobePath string
	manifestDir string
}

// ConcatOption configures an FFmpegConcatenator.
type ConcatOption func(*FFmpegConcatenator)

// WithManifestDir sets where concat manifests are written.
// Defaults to the directory of the output file.
func WithManifestDir(dir string) ConcatOption {
	return func(c *FFmpegConcatenator) {
		c.manifestDir = dir
	}
}

// WithFFprobePath sets the ffprobe binary used by Duration.
func WithFFprobePath(path string) ConcatOption {
	return func(c *FFmpegConcatenator) {
		c.ffprobePath = path
	}
}

// NewFFmpegConcatenator creates a new FFmpegConcatenator.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegConcatenator(ffmpegPath string, opts ...ConcatOption) *FFmpegConcatenator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	c := &FFmpegConcatenator{ffmpegPath: ffmpegPath, ffprobePath: "ffprobe"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Concatenate joins the videos with stream copy. The manifest is removed
// whether or not ffmpeg succeeds.
func (c *FFmpegConcatenator) Concatenate(ctx context.Context, orderedPaths []string, output string) error {
	if len(orderedPaths) < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewInputs, len(orderedPaths))
	}

	manifestDir := c.manifestDir
	if manifestDir == "" {
		manifestDir = filepath.Dir(output)
	}

	manifest, err := writeManifest(manifestDir, orderedPaths)
	if err != nil {
		return fmt.Errorf("create concat manifest: %w", err)
	}
	defer func() { _ = os.Remove(manifest) }()

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0", // manifest holds absolute paths
		"-i", manifest,
		"-c", "copy",
		output,
	}
	if err := c.run(ctx, args); err != nil {
		return err
	}

	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		return &ProcessError{Args: args, Err: ErrOutputMissing}
	}
	return nil
}

// writeManifest writes the concat demuxer input list. Each line has the form
// file '<absolute path>' with embedded single quotes escaped.
func writeManifest(dir string, paths []string) (string, error) {
	f, err := os.CreateTemp(dir, "list_*.txt")
	if err != nil {
		return "", fmt.Errorf("create manifest file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("get absolute path for %s: %w", p, err)
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("write manifest: %w", err)
		}
	}

	return f.Name(), nil
}

func (c *FFmpegConcatenator) run(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &ProcessError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// Duration returns the duration in seconds of a media file using ffprobe.
func (c *FFmpegConcatenator) Duration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration); err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

// ProcessError reports a failed ffmpeg run, including its stderr output.
type ProcessError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
