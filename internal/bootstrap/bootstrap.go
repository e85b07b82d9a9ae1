// Package bootstrap provides dependency initialization for the Seedance Studio API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/seedance-studio/internal/ark"
	"github.com/maauso/seedance-studio/internal/config"
	"github.com/maauso/seedance-studio/internal/media"
	"github.com/maauso/seedance-studio/internal/session"
	"github.com/maauso/seedance-studio/internal/stitch"
	"github.com/maauso/seedance-studio/internal/storage"
	"github.com/maauso/seedance-studio/internal/taskcache"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Ark      ark.Client
	Stitcher *stitch.Service
	Sessions *session.Controller
	// TempDir is the absolute directory stitched outputs are written to.
	TempDir string

	closers []func() error
}

// Close releases resources owned by the dependencies, such as the Redis
// connection. Running flows are not stopped; see session.Controller.Shutdown.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	// Initialize storage
	store, tempDir, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.TempDir = tempDir

	// Initialize Ark client, fronted by the terminal task cache
	arkClient, err := ark.NewClient(
		ark.WithAPIKey(cfg.ArkAPIKey),
		ark.WithBaseURL(baseURLOrDefault(cfg.ArkBaseURL)),
		ark.WithDefaultModel(cfg.DefaultModel),
		ark.WithHTTPClient(&http.Client{Timeout: cfg.ArkTimeout()}),
	)
	if err != nil {
		return nil, fmt.Errorf("create Ark client: %w", err)
	}

	cache, err := initTaskCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := cache.(interface{ Close() error }); ok {
		deps.closers = append(deps.closers, closer.Close)
	}
	deps.Ark = taskcache.NewClient(arkClient, cache, cfg.TaskCacheTTL(), logger)

	// Initialize ffmpeg concatenation and the stitch service
	ffmpeg := media.NewFFmpegConcatenator(cfg.FFmpegPath, media.WithFFprobePath(cfg.FFprobePath))
	deps.Stitcher = stitch.NewService(store, ffmpeg,
		stitch.WithFetcher(stitch.NewHTTPFetcher(&http.Client{Timeout: cfg.FetchTimeout()})),
		stitch.WithProber(ffmpeg),
		stitch.WithLogger(logger),
	)

	// Initialize the session controller
	deps.Sessions = session.NewController(deps.Ark, deps.Stitcher, session.NewMemoryRepository(),
		session.WithLogger(logger),
		session.WithMaxPollAttempts(cfg.MaxPollAttempts),
	)

	return deps, nil
}

func baseURLOrDefault(u string) string {
	if u == "" {
		return ark.DefaultBaseURL
	}
	return u
}

// initTaskCache returns a Redis cache when REDIS_ADDR is set, otherwise an
// in-process cache.
func initTaskCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (taskcache.Cache, error) {
	if !cfg.RedisEnabled() {
		logger.Info("in-memory task cache configured")
		return taskcache.NewMemoryCache(), nil
	}

	cache, err := taskcache.NewRedisCache(ctx, taskcache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("create task cache: %w", err)
	}
	logger.Info("redis task cache configured",
		slog.String("addr", cfg.RedisAddr),
		slog.Duration("ttl", cfg.TaskCacheTTL()),
	)
	return cache, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, string, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("temp_dir", s3Store.TempDir()),
		)
		return s3Store, s3Store.TempDir(), nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, "", fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, localStore.TempDir(), nil
}
