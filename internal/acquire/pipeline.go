// Package acquire turns a user-supplied URL into a verified local media file
// by running a bounded number of extraction attempts, each with a different
// configuration from the strategy generator.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"recorte/internal/naming"
	"recorte/internal/strategy"
)

// DefaultTitle is returned when the extractor reports no title.
const DefaultTitle = "Audio"

// Extractor is the external extraction capability: given a URL and a
// configuration it writes the media under destPrefix (plus an extension)
// and returns the written path and the media title.
type Extractor interface {
	Extract(ctx context.Context, url string, cfg strategy.Config, destPrefix string) (path string, title string, err error)
}

// Resolver finds an alternate endpoint for a URL, if one responds.
type Resolver interface {
	Resolve(ctx context.Context, url string) (string, bool)
}

// Generator yields the configuration for attempt i of total.
type Generator interface {
	For(attempt, total int) strategy.Config
}

// ErrExhausted is matched by errors.Is on an *ExhaustedError.
var ErrExhausted = errors.New("download attempts exhausted")

// ErrUndersized marks a produced file smaller than the acceptance threshold.
var ErrUndersized = errors.New("downloaded file below minimum size")

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d download attempts failed, try again later: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// blockedPattern matches upstream failures caused by bot detection or
// rate limiting.
var blockedPattern = regexp.MustCompile(`(?i)\b(403|429)\b|forbidden|too many requests|rate.?limit|sign in to confirm|not a bot|captcha|login required`)

// IsBlocked reports whether err looks like an upstream block.
func IsBlocked(err error) bool {
	return err != nil && blockedPattern.MatchString(err.Error())
}

// Result is a verified local download.
type Result struct {
	Path     string
	Title    string
	Size     int64
	Attempt  int
	Strategy string
	URL      string
}

// Options configure a Pipeline.
type Options struct {
	TempDir      string
	Attempts     int
	BaseDelay    time.Duration
	Jitter       time.Duration
	BlockedDelay time.Duration
	MinBytes     int64
	// Limiter paces extraction calls across all jobs. Nil disables pacing.
	Limiter *rate.Limiter
	// Resolver is the optional mirror pre-step.
	Resolver Resolver
	Logger   hclog.Logger
}

// Pipeline runs the acquisition attempts for a job.
type Pipeline struct {
	extractor Extractor
	generator Generator
	opts      Options
	logger    hclog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a Pipeline.
func NewPipeline(extractor Extractor, generator Generator, opts Options) *Pipeline {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Pipeline{
		extractor: extractor,
		generator: generator,
		opts:      opts,
		logger:    logger.Named("acquire"),
		sleep:     sleepContext,
	}
}

// Acquire downloads the media for jobID. On success the returned file lives
// in the temp directory and belongs to the caller. On failure no attempt
// file of this job is left behind.
func (p *Pipeline) Acquire(ctx context.Context, jobID, url string) (*Result, error) {
	log := p.logger.With("job", jobID)

	effective := url
	if p.opts.Resolver != nil {
		if alt, ok := p.opts.Resolver.Resolve(ctx, url); ok {
			log.Info("using alternate endpoint", "url", alt)
			effective = alt
		}
	}

	total := p.opts.Attempts
	var lastErr error
	extraDelay := time.Duration(0)

	for attempt := 0; attempt < total; attempt++ {
		if attempt > 0 {
			wait := p.delay(attempt) + extraDelay
			extraDelay = 0
			log.Debug("waiting before next attempt", "attempt", attempt+1, "wait", wait)
			if err := p.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		cfg := p.generator.For(attempt, total)
		log.Info("download attempt", "attempt", attempt+1, "of", total, "strategy", cfg.Strategy, "formats", cfg.Formats.String())

		res, err := p.try(ctx, jobID, effective, cfg)
		if err == nil {
			log.Info("download succeeded", "attempt", attempt+1, "size_mb", fmt.Sprintf("%.2f", float64(res.Size)/(1024*1024)))
			return res, nil
		}

		lastErr = err
		p.removeAttempt(jobID, attempt)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if IsBlocked(err) {
			extraDelay = p.opts.BlockedDelay
			log.Warn("download attempt blocked upstream", "attempt", attempt+1, "err", err, "extra_delay", extraDelay)
		} else {
			log.Warn("download attempt failed", "attempt", attempt+1, "err", err)
		}
	}

	return nil, &ExhaustedError{Attempts: total, Last: lastErr}
}

func (p *Pipeline) try(ctx context.Context, jobID, url string, cfg strategy.Config) (*Result, error) {
	if p.opts.Limiter != nil {
		if err := p.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	prefix := naming.TempPrefix(jobID, cfg.Attempt)
	_, title, err := p.extractor.Extract(ctx, url, cfg, filepath.Join(p.opts.TempDir, prefix))
	if err != nil {
		return nil, err
	}

	// The extractor may pick the extension, so locate the file by prefix.
	path, info, err := p.locate(prefix)
	if err != nil {
		return nil, err
	}
	if info.Size() < p.opts.MinBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrUndersized, info.Size())
	}

	if title == "" {
		title = DefaultTitle
	}
	return &Result{
		Path:     path,
		Title:    title,
		Size:     info.Size(),
		Attempt:  cfg.Attempt,
		Strategy: cfg.Strategy,
		URL:      url,
	}, nil
}

func (p *Pipeline) locate(prefix string) (string, os.FileInfo, error) {
	matches, err := filepath.Glob(filepath.Join(p.opts.TempDir, prefix+".*"))
	if err != nil {
		return "", nil, err
	}
	for _, m := range matches {
		info, err := os.Stat(m)
		if err == nil && info.Mode().IsRegular() {
			return m, info, nil
		}
	}
	return "", nil, fmt.Errorf("downloaded file not found for %s", prefix)
}

func (p *Pipeline) removeAttempt(jobID string, attempt int) {
	matches, _ := filepath.Glob(filepath.Join(p.opts.TempDir, naming.TempPrefix(jobID, attempt)+".*"))
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove attempt file", "path", m, "err", err)
		}
	}
}

// delay grows linearly with the attempt index, plus optional jitter.
func (p *Pipeline) delay(attempt int) time.Duration {
	d := p.opts.BaseDelay * time.Duration(attempt)
	if p.opts.Jitter > 0 {
		d += rand.N(p.opts.Jitter)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
