package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/seedance-studio/internal/ark"
	"github.com/maauso/seedance-studio/internal/session/id"
	"github.com/maauso/seedance-studio/internal/stitch"
)

// Default flow timings.
const (
	DefaultSingleInterval    = 4000 * time.Millisecond
	DefaultSegmentInterval   = 2000 * time.Millisecond
	DefaultReferenceInterval = 2000 * time.Millisecond
	DefaultSubmitStagger     = 500 * time.Millisecond
	DefaultMaxPollAttempts   = 900
)

// ErrFlowInProgress is returned when a flow is started on a busy session.
var ErrFlowInProgress = errors.New("a generation flow is already running for this session")

// errCancelledMessage is shown on sessions whose flow was cancelled by shutdown.
const errCancelledMessage = "generation cancelled"

// flow tracks one running flow.
type flow struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller owns sessions and runs their generation flows. At most one flow
// runs per session.
type Controller struct {
	client   ark.Client
	stitcher stitch.Stitcher
	repo     Repository
	logger   *slog.Logger
	now      func() time.Time

	singleInterval    time.Duration
	segmentInterval   time.Duration
	referenceInterval time.Duration
	submitStagger     time.Duration
	maxPollAttempts   int

	mu    sync.Mutex
	flows map[string]*flow
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPollIntervals overrides the single, continuous-segment and reference
// poll intervals.
func WithPollIntervals(single, segment, reference time.Duration) Option {
	return func(c *Controller) {
		c.singleInterval = single
		c.segmentInterval = segment
		c.referenceInterval = reference
	}
}

// WithSubmitStagger sets the delay between consecutive single-mode submissions.
func WithSubmitStagger(d time.Duration) Option {
	return func(c *Controller) {
		c.submitStagger = d
	}
}

// WithMaxPollAttempts caps poll ticks per wait. Zero disables the cap.
func WithMaxPollAttempts(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.maxPollAttempts = n
		}
	}
}

// WithClock sets the time source used for generation times.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a new Controller.
func NewController(client ark.Client, stitcher stitch.Stitcher, repo Repository, opts ...Option) *Controller {
	c := &Controller{
		client:            client,
		stitcher:          stitcher,
		repo:              repo,
		logger:            slog.Default(),
		now:               time.Now,
		singleInterval:    DefaultSingleInterval,
		segmentInterval:   DefaultSegmentInterval,
		referenceInterval: DefaultReferenceInterval,
		submitStagger:     DefaultSubmitStagger,
		maxPollAttempts:   DefaultMaxPollAttempts,
		flows:             make(map[string]*flow),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create creates and stores a new idle session.
func (c *Controller) Create(ctx context.Context) (*Session, error) {
	s := New()
	if err := c.repo.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.logger.Info("session created", slog.String("session_id", s.ID()))
	return s, nil
}

// Get returns a stored session.
func (c *Controller) Get(ctx context.Context, sessionID string) (*Session, error) {
	return c.find(ctx, sessionID)
}

// find looks up a session. IDs that Create could not have issued are
// rejected without touching the repository.
func (c *Controller) find(ctx context.Context, sessionID string) (*Session, error) {
	if !id.Valid(sessionID) {
		return nil, ErrSessionNotFound
	}
	return c.repo.FindByID(ctx, sessionID)
}

// Start validates in and runs its flow in the background. The flow outlives
// ctx; it stops on Reset, Delete or Shutdown.
func (c *Controller) Start(ctx context.Context, sessionID string, in Input) error {
	flowCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s, f, err := c.begin(ctx, sessionID, in, cancel)
	if err != nil {
		cancel()
		return err
	}

	go func() {
		defer c.finish(sessionID, f)
		defer cancel()
		c.execute(flowCtx, s, in)
	}()
	return nil
}

// Run validates in and runs its flow to completion, returning the final
// snapshot. Flow failures are reported in the snapshot, not as an error.
func (c *Controller) Run(ctx context.Context, sessionID string, in Input) (Snapshot, error) {
	flowCtx, cancel := context.WithCancel(ctx)
	s, f, err := c.begin(ctx, sessionID, in, cancel)
	if err != nil {
		cancel()
		return Snapshot{}, err
	}
	defer c.finish(sessionID, f)
	defer cancel()

	c.execute(flowCtx, s, in)
	return s.Snapshot(), nil
}

// begin claims the session for a new flow and moves it to generating.
func (c *Controller) begin(ctx context.Context, sessionID string, in Input, cancel context.CancelFunc) (*Session, *flow, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}

	s, err := c.find(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.flows[sessionID]; busy {
		return nil, nil, ErrFlowInProgress
	}
	if err := s.Begin(in.Mode); err != nil {
		return nil, nil, ErrFlowInProgress
	}

	f := &flow{cancel: cancel, done: make(chan struct{})}
	c.flows[sessionID] = f
	return s, f, nil
}

func (c *Controller) finish(sessionID string, f *flow) {
	c.mu.Lock()
	if c.flows[sessionID] == f {
		delete(c.flows, sessionID)
	}
	c.mu.Unlock()
	close(f.done)
}

// stop cancels the session's flow, if any, and waits for it to exit.
func (c *Controller) stop(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	f, ok := c.flows[sessionID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	f.cancel()
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset cancels any running flow and returns the session to idle.
func (c *Controller) Reset(ctx context.Context, sessionID string) (Snapshot, error) {
	s, err := c.find(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := c.stop(ctx, sessionID); err != nil {
		return Snapshot{}, err
	}
	s.Reset()
	return s.Snapshot(), nil
}

// Delete cancels any running flow, closes subscribers and removes the session.
func (c *Controller) Delete(ctx context.Context, sessionID string) error {
	s, err := c.find(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := c.stop(ctx, sessionID); err != nil {
		return err
	}
	s.Close()
	return c.repo.Delete(ctx, sessionID)
}

// Shutdown cancels every running flow and waits for them to exit or ctx to end.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	running := make([]*flow, 0, len(c.flows))
	for _, f := range c.flows {
		running = append(running, f)
	}
	c.mu.Unlock()

	for _, f := range running {
		f.cancel()
	}
	for _, f := range running {
		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// execute runs the flow for in.Mode and records its outcome on s.
func (c *Controller) execute(ctx context.Context, s *Session, in Input) {
	logger := c.logger.With(slog.String("session_id", s.ID()), slog.String("mode", string(in.Mode)))
	logger.Info("flow started")

	var err error
	switch in.Mode {
	case ModeSingle:
		err = c.runSingle(ctx, logger, s, in)
	case ModeContinuous:
		err = c.runContinuous(ctx, logger, s, in)
	case ModeReference:
		err = c.runReference(ctx, logger, s, in)
	}

	if err == nil {
		logger.Info("flow succeeded", slog.Int("results", len(s.Snapshot().Results)))
		return
	}

	msg := err.Error()
	if ctx.Err() != nil {
		msg = errCancelledMessage
	}
	logger.Warn("flow failed", slog.String("error", err.Error()))
	if ferr := s.Fail(msg); ferr != nil {
		logger.Error("failed to record flow failure", slog.String("error", ferr.Error()))
	}
}

// pollUntil calls tick once per interval until it reports done, returns an
// error, ctx ends or the attempt cap is reached.
func (c *Controller) pollUntil(ctx context.Context, interval time.Duration, tick func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		done, err := tick(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if c.maxPollAttempts > 0 && attempt >= c.maxPollAttempts {
			return fmt.Errorf("polling timed out after %d attempts", attempt)
		}
	}
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
