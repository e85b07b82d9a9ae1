// Package taskcache caches terminal Ark task payloads so repeated polls of a
// finished task are served locally instead of hitting the provider again.
package taskcache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maauso/seedance-studio/internal/ark"
)

// ErrMiss is returned by Cache.Get when no entry exists for the task.
var ErrMiss = errors.New("taskcache: miss")

// DefaultTTL is how long a terminal payload is kept.
const DefaultTTL = 30 * time.Minute

// Cache stores raw task payloads keyed by task ID.
type Cache interface {
	// Get returns the raw payload for a task, or ErrMiss.
	Get(ctx context.Context, taskID string) ([]byte, error)

	// Set stores a raw payload for a task.
	Set(ctx context.Context, taskID string, raw []byte, ttl time.Duration) error
}

// Client decorates an ark.Client, answering polls for terminal tasks from the cache.
type Client struct {
	next   ark.Client
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// Compile-time check that Client implements ark.Client.
var _ ark.Client = (*Client)(nil)

// NewClient wraps next with cache. A non-positive ttl uses DefaultTTL.
func NewClient(next ark.Client, cache Cache, ttl time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Submit is passed through unchanged.
func (c *Client) Submit(ctx context.Context, req ark.GenerationRequest) (ark.Submission, error) {
	return c.next.Submit(ctx, req)
}

// Poll serves terminal statuses from the cache and stores new terminal
// statuses after fetching them. Cache failures are logged, never returned.
func (c *Client) Poll(ctx context.Context, taskID string) (ark.TaskStatus, error) {
	raw, err := c.cache.Get(ctx, taskID)
	switch {
	case err == nil:
		status, parseErr := ark.ParseTaskStatus(raw)
		if parseErr == nil {
			return status, nil
		}
		c.logger.Warn("discarding unreadable cached task payload",
			slog.String("task_id", taskID),
			slog.String("error", parseErr.Error()),
		)
	case !errors.Is(err, ErrMiss):
		c.logger.Warn("task cache lookup failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}

	status, err := c.next.Poll(ctx, taskID)
	if err != nil {
		return status, err
	}

	if status.Status.IsTerminal() {
		if err := c.cache.Set(ctx, taskID, status.Raw, c.ttl); err != nil {
			c.logger.Warn("task cache store failed",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
		}
	}

	return status, nil
}
