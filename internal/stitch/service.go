// Package stitch downloads generated segments and joins them into one video.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/seedance-studio/internal/media"
	"github.com/maauso/seedance-studio/internal/storage"
)

// MinSegments is the smallest number of videos a stitch accepts.
const MinSegments = 2

// PublicPrefix is the URL prefix under which TEMP_DIR is served.
const PublicPrefix = "/temp/"

// maxParallelFetches bounds concurrent segment downloads.
const maxParallelFetches = 4

// Stitcher joins remote videos into a single published video.
type Stitcher interface {
	Stitch(ctx context.Context, urls []string) (Result, error)
}

// Prober reports the duration of a local media file.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Result describes a stitched video.
type Result struct {
	// URL is where clients can fetch the video: /temp/<name> or an S3 URL.
	URL string `json:"url"`
	// Path is the local file in the temp directory.
	Path string `json:"-"`
	// Segments is the number of videos joined.
	Segments int `json:"segments"`
	// DurationSec is set when a Prober is configured and succeeds.
	DurationSec float64 `json:"durationSec,omitempty"`
}

// Service implements Stitcher on top of Storage and a Concatenator.
type Service struct {
	storage storage.Storage
	concat  media.Concatenator
	fetcher Fetcher
	prober  Prober
	logger  *slog.Logger
	now     func() time.Time
}

// Compile-time check that Service implements Stitcher.
var _ Stitcher = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithFetcher sets how segments are downloaded.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

// WithProber enables duration reporting on results.
func WithProber(p Prober) Option {
	return func(s *Service) {
		s.prober = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the time source used for output names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new stitch Service.
func NewService(store storage.Storage, concat media.Concatenator, opts ...Option) *Service {
	s := &Service{
		storage: store,
		concat:  concat,
		fetcher: NewHTTPFetcher(nil),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stitch downloads urls in order, concatenates them with stream copy and
// publishes the result. Intermediate files are removed on every path and a
// failed concatenation leaves no output behind.
func (s *Service) Stitch(ctx context.Context, urls []string) (Result, error) {
	if len(urls) < MinSegments {
		return Result{}, &ValidationError{Message: "At least 2 video URLs are required"}
	}

	ts := s.now().UnixMilli()
	logger := s.logger.With("segments", len(urls), "stitch_id", ts)

	ws, err := s.storage.NewWorkspace(ctx, fmt.Sprintf("stitch_%d", ts))
	if err != nil {
		return Result{}, fmt.Errorf("stitch: create workspace: %w", err)
	}
	defer func() {
		if err := ws.Release(); err != nil {
			logger.Warn("failed to release stitch workspace", "error", err)
		}
	}()

	paths, err := s.fetchAll(ctx, ws, ts, urls)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("segments downloaded")

	name := fmt.Sprintf("stitched_%d.mp4", ts)
	output := s.storage.OutputPath(name)

	if err := s.concat.Concatenate(ctx, paths, output); err != nil {
		// Use a fresh context: ctx may be the reason concatenation failed.
		if cerr := s.storage.CleanupTemp(context.Background(), []string{output}); cerr != nil {
			logger.Warn("failed to remove partial output", "path", output, "error", cerr)
		}
		return Result{}, fmt.Errorf("stitch: concatenate: %w", err)
	}

	result := Result{
		URL:      PublicPrefix + name,
		Path:     output,
		Segments: len(urls),
	}

	if s.prober != nil {
		if d, err := s.prober.Duration(ctx, output); err != nil {
			logger.Warn("failed to probe stitched duration", "error", err)
		} else {
			result.DurationSec = d
		}
	}

	if url, ok := s.publish(ctx, logger, name, output); ok {
		result.URL = url
	}

	logger.Info("stitch completed", "url", result.URL)
	return result, nil
}

// fetchAll downloads every segment into the workspace. Paths keep the order
// of urls regardless of download completion order.
func (s *Service) fetchAll(ctx context.Context, ws *storage.Workspace, ts int64, urls []string) ([]string, error) {
	paths := make([]string, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)

	for i, u := range urls {
		g.Go(func() error {
			body, err := s.fetcher.Fetch(gctx, u)
			if err != nil {
				return &IOError{Index: i, URL: u, Err: err}
			}
			defer func() { _ = body.Close() }()

			path, err := ws.SaveTemp(gctx, fmt.Sprintf("segment_%d_%d.mp4", ts, i), body)
			if err != nil {
				return &IOError{Index: i, URL: u, Err: err}
			}
			paths[i] = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// publish uploads the output when S3 is configured. ok is false when the
// local URL should be used.
func (s *Service) publish(ctx context.Context, logger *slog.Logger, name, output string) (string, bool) {
	f, err := s.storage.LoadTemp(ctx, output)
	if err != nil {
		logger.Warn("failed to open stitched output for publishing", "error", err)
		return "", false
	}
	defer func() { _ = f.Close() }()

	url, err := s.storage.UploadToS3(ctx, name, f)
	if err != nil {
		if !errors.Is(err, storage.ErrS3NotConfigured) {
			logger.Warn("failed to publish stitched video, serving locally", "error", err)
		}
		return "", false
	}
	return url, true
}
