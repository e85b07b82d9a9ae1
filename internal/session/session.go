// Package session provides the generation Session aggregate and the Controller
// that drives single, continuous and reference generation flows against the
// Ark task API.
package session

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/seedance-studio/internal/session/id"
)

// Mode selects which generation flow a session runs.
type Mode string

const (
	// ModeSingle submits 1-4 independent clips from one prompt.
	ModeSingle Mode = "single"
	// ModeContinuous chains one clip per prompt and stitches them.
	ModeContinuous Mode = "continuous"
	// ModeReference generates one clip grounded in reference images.
	ModeReference Mode = "reference"
)

// IsValid returns true if the mode is known.
func (m Mode) IsValid() bool {
	return m == ModeSingle || m == ModeContinuous || m == ModeReference
}

// Status represents the current state of a Session.
type Status string

const (
	// StatusIdle indicates no flow has run since creation or reset.
	StatusIdle Status = "idle"
	// StatusGenerating indicates tasks are being submitted, or segments stitched.
	StatusGenerating Status = "generating"
	// StatusPolling indicates submitted tasks are being polled.
	StatusPolling Status = "polling"
	// StatusSuccess indicates the flow finished with results.
	StatusSuccess Status = "success"
	// StatusFailed indicates the flow stopped on an error.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if no flow is running in this status.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// Any state may return to idle through Reset.
var validTransitions = map[Status][]Status{
	StatusIdle:       {StatusGenerating},
	StatusGenerating: {StatusPolling, StatusSuccess, StatusFailed},
	StatusPolling:    {StatusPolling, StatusGenerating, StatusSuccess, StatusFailed},
	StatusSuccess:    {StatusGenerating},
	StatusFailed:     {StatusGenerating},
}

func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// VideoResult is one generated clip. Results are immutable once appended.
type VideoResult struct {
	URL string `json:"url"`
	// GenerationTime is the wall-clock time from submission to result, in seconds.
	GenerationTime float64         `json:"generationTime"`
	TokenUsage     int             `json:"tokenUsage"`
	Prompt         string          `json:"prompt"`
	TaskID         string          `json:"taskId"`
	Raw            json.RawMessage `json:"rawResponse,omitempty"`
}

// Snapshot is a point-in-time copy of a Session, safe to share.
type Snapshot struct {
	ID          string        `json:"id"`
	Mode        Mode          `json:"mode,omitempty"`
	Status      Status        `json:"status"`
	TaskIDs     []string      `json:"taskIds,omitempty"`
	Results     []VideoResult `json:"videoResults"`
	StitchedURL string        `json:"stitchedVideoUrl,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Session is the state of one user's generation workspace. All mutation goes
// through its transition methods; every change is published to subscribers.
type Session struct {
	mu sync.RWMutex

	id          string
	mode        Mode
	status      Status
	taskIDs     []string
	results     []VideoResult
	stitchedURL string
	errMsg      string
	createdAt   time.Time
	updatedAt   time.Time

	subs    map[int]chan Snapshot
	nextSub int
	closed  bool
}

// New creates an idle Session with a generated ID.
func New() *Session {
	return NewWithID(id.Generate())
}

// NewWithID creates an idle Session with the specified ID.
func NewWithID(sessionID string) *Session {
	now := time.Now()
	return &Session{
		id:        sessionID,
		status:    StatusIdle,
		createdAt: now,
		updatedAt: now,
		subs:      make(map[int]chan Snapshot),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          s.id,
		Mode:        s.mode,
		Status:      s.status,
		TaskIDs:     slices.Clone(s.taskIDs),
		Results:     append([]VideoResult{}, s.results...),
		StitchedURL: s.stitchedURL,
		Error:       s.errMsg,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}

// Begin starts a new flow in the given mode, clearing the previous flow's
// results, stitched URL and error.
func (s *Session) Begin(mode Mode) error {
	return s.update(func() error {
		if err := s.transitionLocked(StatusGenerating); err != nil {
			return err
		}
		s.mode = mode
		s.taskIDs = nil
		s.results = nil
		s.stitchedURL = ""
		s.errMsg = ""
		return nil
	})
}

// SetPolling records the outstanding task handles and moves to polling.
func (s *Session) SetPolling(taskIDs ...string) error {
	return s.update(func() error {
		if err := s.transitionLocked(StatusPolling); err != nil {
			return err
		}
		s.taskIDs = slices.Clone(taskIDs)
		return nil
	})
}

// AppendResult adds a finished clip while the flow is still running.
func (s *Session) AppendResult(r VideoResult) error {
	return s.update(func() error {
		if s.status.IsTerminal() || s.status == StatusIdle {
			return ErrInvalidTransition
		}
		s.results = append(s.results, r)
		return nil
	})
}

// BeginStitch re-enters generating for the stitch phase.
func (s *Session) BeginStitch() error {
	return s.update(func() error {
		if err := s.transitionLocked(StatusGenerating); err != nil {
			return err
		}
		s.taskIDs = nil
		return nil
	})
}

// Succeed finishes the flow. results replaces the accumulated sequence when
// non-nil; stitchedURL is set for continuous flows.
func (s *Session) Succeed(results []VideoResult, stitchedURL string) error {
	return s.update(func() error {
		if err := s.transitionLocked(StatusSuccess); err != nil {
			return err
		}
		if results != nil {
			s.results = append([]VideoResult{}, results...)
		}
		s.stitchedURL = stitchedURL
		s.taskIDs = nil
		return nil
	})
}

// Fail stops the flow with a user-visible message. Results gathered so far
// are kept.
func (s *Session) Fail(msg string) error {
	return s.update(func() error {
		if err := s.transitionLocked(StatusFailed); err != nil {
			return err
		}
		s.errMsg = msg
		s.taskIDs = nil
		return nil
	})
}

// Reset returns the session to idle from any state.
func (s *Session) Reset() {
	_ = s.update(func() error {
		s.status = StatusIdle
		s.taskIDs = nil
		s.results = nil
		s.stitchedURL = ""
		s.errMsg = ""
		return nil
	})
}

func (s *Session) transitionLocked(to Status) error {
	if !canTransition(s.status, to) {
		return ErrInvalidTransition
	}
	s.status = to
	return nil
}

// update applies fn under the lock and publishes the new state if fn succeeds.
func (s *Session) update(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	s.updatedAt = time.Now()
	s.publishLocked()
	return nil
}

// subscriberBuffer is the per-subscriber queue length. When a subscriber
// falls behind, its oldest queued snapshot is dropped.
const subscriberBuffer = 16

// Subscribe returns a channel receiving the current snapshot followed by one
// snapshot per change, and a func that unsubscribes and closes the channel.
// The channel is also closed when the session is closed.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	key := s.nextSub
	s.nextSub++
	s.subs[key] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[key]; ok {
				delete(s.subs, key)
				close(sub)
			}
		})
	}
}

func (s *Session) publishLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Close closes every subscriber channel. Later Subscribe calls get a closed channel.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for key, ch := range s.subs {
		delete(s.subs, key)
		close(ch)
	}
}
