package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/seedance-studio/internal/ark"
)

// User-visible failure messages.
const (
	msgTasksFailed     = "One or more tasks failed"
	msgURLsNotFound    = "Video URLs not found in responses"
	msgSegmentFailed   = "Segment generation failed"
	msgSegmentURL      = "Video URL not found"
	msgStitchingFailed = "Stitching failed"
	msgTaskFailed      = "Task failed"
	msgURLNotFound     = "Video URL not found in response"
)

// flowError carries the message recorded on the session.
type flowError struct {
	msg string
	err error
}

func (e *flowError) Error() string { return e.msg }
func (e *flowError) Unwrap() error { return e.err }

func failWith(msg string) error {
	return &flowError{msg: msg}
}

// failureMessage returns the message for a failed or cancelled task.
func failureMessage(st ark.TaskStatus, fallback string) string {
	if st.Error != "" {
		return st.Error
	}
	return fallback
}

// isFailure reports whether a task ended without a result.
func isFailure(st ark.Status) bool {
	return st == ark.StatusFailed || st == ark.StatusCancelled
}

// pendingTask is a submitted task awaiting its result.
type pendingTask struct {
	id        string
	prompt    string
	startedAt time.Time
}

// result builds the VideoResult for a succeeded task.
func (c *Controller) result(t pendingTask, st ark.TaskStatus, url string) VideoResult {
	return VideoResult{
		URL:            url,
		GenerationTime: c.now().Sub(t.startedAt).Seconds(),
		TokenUsage:     st.TotalTokens,
		Prompt:         t.prompt,
		TaskID:         t.id,
		Raw:            st.Raw,
	}
}

// runSingle submits count clips staggered by submitStagger and polls them
// together until the first failure or until all succeed.
func (c *Controller) runSingle(ctx context.Context, logger *slog.Logger, s *Session, in Input) error {
	count := in.count()
	tasks := make([]pendingTask, count)
	errs := make([]error, count)

	var g errgroup.Group
	for i := range count {
		g.Go(func() error {
			if err := sleep(ctx, time.Duration(i)*c.submitStagger); err != nil {
				errs[i] = err
				return nil
			}
			started := c.now()
			sub, err := c.client.Submit(ctx, in.Params.request(in.Prompt))
			if err != nil {
				errs[i] = err
				return nil
			}
			tasks[i] = pendingTask{id: sub.ID, prompt: sub.FormattedPrompt, startedAt: started}
			return nil
		})
	}
	_ = g.Wait()

	// Submission errors are reported in request order.
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	ids := make([]string, count)
	for i, t := range tasks {
		ids[i] = t.id
	}
	if err := s.SetPolling(ids...); err != nil {
		return err
	}
	logger.Info("tasks submitted", slog.Any("task_ids", ids))

	var results []VideoResult
	err := c.pollUntil(ctx, c.singleInterval, func(ctx context.Context) (bool, error) {
		statuses, err := c.pollAll(ctx, ids)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.Warn("poll failed, retrying on next tick", slog.String("error", err.Error()))
			return false, nil
		}

		for _, st := range statuses {
			if isFailure(st.Status) {
				return false, failWith(failureMessage(st, msgTasksFailed))
			}
		}
		for _, st := range statuses {
			if st.Status != ark.StatusSucceeded {
				return false, nil
			}
		}

		for i, st := range statuses {
			url, err := st.Content.VideoURL()
			if err != nil {
				logger.Warn("succeeded task has no video URL", slog.String("task_id", ids[i]))
				continue
			}
			results = append(results, c.result(tasks[i], st, url))
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		return failWith(msgURLsNotFound)
	}
	return s.Succeed(results, "")
}

// pollAll polls every task concurrently. Statuses keep the order of ids.
func (c *Controller) pollAll(ctx context.Context, ids []string) ([]ark.TaskStatus, error) {
	statuses := make([]ark.TaskStatus, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, taskID := range ids {
		g.Go(func() error {
			st, err := c.client.Poll(gctx, taskID)
			if err != nil {
				return fmt.Errorf("poll task %s: %w", taskID, err)
			}
			statuses[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// runContinuous generates one segment per prompt in order, chaining each
// segment's last frame into the next, then stitches the segments.
func (c *Controller) runContinuous(ctx context.Context, logger *slog.Logger, s *Session, in Input) error {
	startImage := in.Params.StartImage
	last := len(in.Prompts) - 1
	urls := make([]string, 0, len(in.Prompts))

	for i, prompt := range in.Prompts {
		req := in.Params.request(prompt)
		req.StartImage = startImage
		req.EndImage = ""
		if i == last {
			req.EndImage = in.Params.EndImage
		}
		req.ReturnLastFrame = true

		started := c.now()
		sub, err := c.client.Submit(ctx, req)
		if err != nil {
			return err
		}
		if err := s.SetPolling(sub.ID); err != nil {
			return err
		}

		segLogger := logger.With(slog.Int("segment", i), slog.String("task_id", sub.ID))
		segLogger.Info("segment submitted")

		var done ark.TaskStatus
		err = c.pollUntil(ctx, c.segmentInterval, func(ctx context.Context) (bool, error) {
			st, err := c.client.Poll(ctx, sub.ID)
			if err != nil {
				return false, err
			}
			if isFailure(st.Status) {
				return false, failWith(failureMessage(st, msgSegmentFailed))
			}
			if st.Status == ark.StatusSucceeded {
				done = st
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			return err
		}

		url, err := done.Content.VideoURL()
		if err != nil {
			return &flowError{msg: msgSegmentURL, err: err}
		}

		t := pendingTask{id: sub.ID, prompt: prompt, startedAt: started}
		if err := s.AppendResult(c.result(t, done, url)); err != nil {
			return err
		}
		urls = append(urls, url)
		segLogger.Info("segment completed")

		if frame, ok := done.Content.LastFrameURL(); ok {
			startImage = frame
		}
	}

	if err := s.BeginStitch(); err != nil {
		return err
	}

	result, err := c.stitcher.Stitch(ctx, urls)
	if err != nil {
		logger.Error("stitch failed", slog.String("error", err.Error()))
		return &flowError{msg: msgStitchingFailed, err: err}
	}
	return s.Succeed(nil, result.URL)
}

// runReference generates one clip from reference images with ReferenceModel.
func (c *Controller) runReference(ctx context.Context, logger *slog.Logger, s *Session, in Input) error {
	req := in.Params.request(in.Prompt)
	req.ReferenceImages = in.ReferenceImages
	req.Model = ReferenceModel

	started := c.now()
	sub, err := c.client.Submit(ctx, req)
	if err != nil {
		return err
	}
	if err := s.SetPolling(sub.ID); err != nil {
		return err
	}
	logger = logger.With(slog.String("task_id", sub.ID))
	logger.Info("reference task submitted")

	var done ark.TaskStatus
	err = c.pollUntil(ctx, c.referenceInterval, func(ctx context.Context) (bool, error) {
		st, err := c.client.Poll(ctx, sub.ID)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.Warn("poll failed, retrying on next tick", slog.String("error", err.Error()))
			return false, nil
		}
		if isFailure(st.Status) {
			return false, failWith(failureMessage(st, msgTaskFailed))
		}
		if st.Status == ark.StatusSucceeded {
			done = st
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	url, err := done.Content.VideoURL()
	if err != nil {
		return failWith(msgURLNotFound)
	}

	t := pendingTask{id: sub.ID, prompt: in.Prompt, startedAt: started}
	return s.Succeed([]VideoResult{c.result(t, done, url)}, "")
}
