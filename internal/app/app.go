// Package app wires configuration into the job service and its collaborators.
// It is shared by the HTTP server and the operator CLI.
package app

import (
	"fmt"
	"math"
	"os"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"recorte/internal/acquire"
	"recorte/internal/config"
	"recorte/internal/jobs"
	"recorte/internal/storage"
	"recorte/internal/strategy"
	"recorte/internal/trim"
	"recorte/internal/youtube"
)

// App holds the long-lived components.
type App struct {
	Config  *config.Config
	Logger  hclog.Logger
	DB      *storage.DB
	Jobs    *storage.JobRepository
	Service *jobs.Service
	Trimmer *trim.Trimmer
	YouTube *youtube.Client
}

// NewLogger builds the root logger from configuration.
func NewLogger(cfg *config.Config) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "recorte",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
		Output:     os.Stderr,
	})
}

// New opens the store and builds the job service.
func New(cfg *config.Config, logger hclog.Logger) (*App, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	policy := strategy.DefaultPolicy()
	if cfg.Download.StrategiesFile != "" {
		p, err := strategy.LoadPolicy(cfg.Download.StrategiesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load strategies: %w", err)
		}
		policy = p
		logger.Info("loaded strategy policy", "file", cfg.Download.StrategiesFile, "strategies", len(p.Strategies))
	}
	generator, err := strategy.NewGenerator(policy, nil)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	repo := storage.NewJobRepository(db)

	var resolver acquire.Resolver
	if len(cfg.Download.MirrorHosts) > 0 {
		resolver = youtube.NewMirrorResolver(cfg.Download.MirrorHosts, nil)
	}

	pipeline := acquire.NewPipeline(youtube.NewExtractor(nil, logger), generator, acquire.Options{
		TempDir:      cfg.TempDir,
		Attempts:     cfg.Download.Attempts,
		BaseDelay:    cfg.Download.BaseDelay,
		Jitter:       cfg.Download.Jitter,
		BlockedDelay: cfg.Download.BlockedDelay,
		MinBytes:     cfg.Download.MinBytes,
		Limiter:      newLimiter(cfg.Download.UpstreamRPS),
		Resolver:     resolver,
		Logger:       logger,
	})

	trimmer := trim.NewTrimmer(
		trim.WithFFmpegPath(cfg.Trim.FFmpegPath),
		trim.WithFFprobePath(cfg.Trim.FFprobePath),
		trim.WithBitrate(cfg.Trim.Bitrate),
		trim.WithFade(cfg.Trim.FadeSeconds),
		trim.WithLogger(logger),
	)

	yt := youtube.NewClient(nil)
	svc := jobs.NewService(repo, pipeline, trimmer, yt, jobs.Options{
		TempDir:    cfg.TempDir,
		OutputDir:  cfg.OutputDir,
		MaxSpan:    cfg.MaxSpanSeconds,
		MaxPending: cfg.Worker.MaxPending,
		Logger:     logger,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Jobs:    repo,
		Service: svc,
		Trimmer: trimmer,
		YouTube: yt,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.DB.Close()
}

// newLimiter paces upstream extraction calls. A non-positive rate disables it.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 || math.IsInf(rps, 1) {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
