// Package trim cuts a time window out of a local media file with ffmpeg.
package trim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Mode is the transcoder mode that produced the output.
type Mode string

const (
	// ModeCopy copies the audio stream without re-encoding. The cut may not
	// start exactly on a codec frame boundary.
	ModeCopy Mode = "copy"
	// ModeReencode re-encodes to MP3 at a fixed bitrate.
	ModeReencode Mode = "reencode"
)

// CommandRunner runs external commands. It allows faking ffmpeg in tests.
type CommandRunner interface {
	// Run executes the command and returns its stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// Output executes the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner is the production implementation using os/exec.
type ExecCommandRunner struct{}

// Run executes a command and returns its stderr.
func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// Output executes a command and returns its stdout.
func (r *ExecCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Request describes one cut. Offsets are whole seconds, End > Start.
type Request struct {
	Source string
	Output string
	Start  int
	End    int
}

// Duration is the length of the requested window in seconds.
func (r Request) Duration() int {
	return r.End - r.Start
}

// Validate checks the window and the source file.
func (r Request) Validate() error {
	if r.Source == "" || r.Output == "" {
		return errors.New("source and output paths are required")
	}
	if r.Start < 0 {
		return fmt.Errorf("start %ds must not be negative", r.Start)
	}
	if r.End <= r.Start {
		return fmt.Errorf("end %ds must be after start %ds", r.End, r.Start)
	}
	if _, err := os.Stat(r.Source); err != nil {
		return fmt.Errorf("input file not found: %s", r.Source)
	}
	return nil
}

// Result describes a successful cut.
type Result struct {
	Path     string
	Size     int64
	Mode     Mode
	Duration int
}

// Error carries the transcoder diagnostics when both modes failed.
type Error struct {
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("ffmpeg failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg failed: %v: %s", e.Err, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Trimmer implements the two-step cut: stream copy first, re-encode second.
type Trimmer struct {
	ffmpegPath    string
	ffprobePath   string
	runner        CommandRunner
	bitrate       string
	fade          float64
	copyTimeout   time.Duration
	encodeTimeout time.Duration
	logger        hclog.Logger
}

// TrimmerOption is a functional option for configuring Trimmer.
type TrimmerOption func(*Trimmer)

// WithFFmpegPath sets a custom ffmpeg executable path.
func WithFFmpegPath(path string) TrimmerOption {
	return func(t *Trimmer) { t.ffmpegPath = path }
}

// WithFFprobePath sets a custom ffprobe executable path.
func WithFFprobePath(path string) TrimmerOption {
	return func(t *Trimmer) { t.ffprobePath = path }
}

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner CommandRunner) TrimmerOption {
	return func(t *Trimmer) { t.runner = runner }
}

// WithBitrate sets the re-encode bitrate, e.g. "192k".
func WithBitrate(bitrate string) TrimmerOption {
	return func(t *Trimmer) { t.bitrate = bitrate }
}

// WithFade sets the fade in/out length in seconds for the re-encode path.
// Zero disables fading.
func WithFade(seconds float64) TrimmerOption {
	return func(t *Trimmer) { t.fade = seconds }
}

// WithTimeouts bounds the copy and re-encode runs.
func WithTimeouts(copyTimeout, encodeTimeout time.Duration) TrimmerOption {
	return func(t *Trimmer) {
		t.copyTimeout = copyTimeout
		t.encodeTimeout = encodeTimeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) TrimmerOption {
	return func(t *Trimmer) { t.logger = logger }
}

// NewTrimmer creates a new ffmpeg-based trimmer.
func NewTrimmer(opts ...TrimmerOption) *Trimmer {
	t := &Trimmer{
		ffmpegPath:    "ffmpeg",
		ffprobePath:   "ffprobe",
		runner:        &ExecCommandRunner{},
		bitrate:       "192k",
		copyTimeout:   2 * time.Minute,
		encodeTimeout: 3 * time.Minute,
		logger:        hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("trim")
	return t
}

// Trim cuts [Start, End) of the source into Output.
//
// The window is expressed as an input seek plus a duration
// (-ss <start> -i <in> -t <end-start>), so the output length does not depend
// on the source stream's base timestamp.
func (t *Trimmer) Trim(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := t.logger.With("start", req.Start, "end", req.End, "duration", req.Duration())
	log.Info("cutting audio")

	stderr, err := t.run(ctx, t.copyTimeout, t.copyArgs(req))
	if err == nil {
		if res, ok := t.result(req, ModeCopy); ok {
			log.Info("stream copy cut done", "size_mb", megabytes(res.Size))
			return res, nil
		}
		err = errors.New("output file missing after stream copy")
	}
	log.Warn("stream copy failed, re-encoding", "err", err, "stderr", strings.TrimSpace(string(stderr)))
	os.Remove(req.Output)

	stderr, err = t.run(ctx, t.encodeTimeout, t.encodeArgs(req))
	if err != nil {
		os.Remove(req.Output)
		return nil, &Error{Stderr: string(stderr), Err: err}
	}
	res, ok := t.result(req, ModeReencode)
	if !ok {
		return nil, &Error{Stderr: string(stderr), Err: errors.New("output file was not created")}
	}
	log.Info("re-encoded cut done", "size_mb", megabytes(res.Size))
	return res, nil
}

func (t *Trimmer) run(ctx context.Context, timeout time.Duration, args []string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stderr, err := t.runner.Run(runCtx, t.ffmpegPath, args...)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return stderr, fmt.Errorf("transcoder timed out after %s: %w", timeout, context.DeadlineExceeded)
	}
	return stderr, err
}

func (t *Trimmer) result(req Request, mode Mode) (*Result, bool) {
	info, err := os.Stat(req.Output)
	if err != nil || info.Size() == 0 {
		return nil, false
	}
	return &Result{Path: req.Output, Size: info.Size(), Mode: mode, Duration: req.Duration()}, true
}

func (t *Trimmer) copyArgs(req Request) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.Itoa(req.Start),
		"-i", req.Source,
		"-t", strconv.Itoa(req.Duration()),
		"-vn",
		"-c:a", "copy",
		"-avoid_negative_ts", "make_zero",
		"-y",
		req.Output,
	}
}

func (t *Trimmer) encodeArgs(req Request) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.Itoa(req.Start),
		"-i", req.Source,
		"-t", strconv.Itoa(req.Duration()),
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", t.bitrate,
	}
	if filter := fadeFilter(float64(req.Duration()), t.fade); filter != "" {
		args = append(args, "-af", filter)
	}
	return append(args, "-y", req.Output)
}

// fadeFilter builds the afade chain; clips shorter than two fades get none.
func fadeFilter(duration, fade float64) string {
	if fade <= 0 || duration <= 2*fade {
		return ""
	}
	f := strconv.FormatFloat(fade, 'f', -1, 64)
	out := strconv.FormatFloat(duration-fade, 'f', -1, 64)
	return fmt.Sprintf("afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s", f, out, f)
}

// Probe returns the duration of a media file in seconds using ffprobe.
func (t *Trimmer) Probe(ctx context.Context, path string) (float64, error) {
	output, err := t.runner.Output(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to get audio duration: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}

// VerifyInstalled checks that ffmpeg is available.
func (t *Trimmer) VerifyInstalled(ctx context.Context) error {
	if _, err := t.runner.Output(ctx, t.ffmpegPath, "-version"); err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	return nil
}

func megabytes(size int64) string {
	return fmt.Sprintf("%.2f", float64(size)/(1024*1024))
}
