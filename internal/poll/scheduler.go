// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package poll

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/lamnguyen92/vichat-tui/internal/api"
	"github.com/lamnguyen92/vichat-tui/internal/cancel"
)

// Backoff constants. Delay for attempt n is
// min(maxDelay, baseDelay*factor^n) plus up to jitterMax of random
// offset, so retries against the backend never synchronize.
const (
	// MaxAttempts is the polling attempt ceiling. Attempt numbering is
	// 0-based, so a message sees at most MaxAttempts+1 status queries
	// before the reply times out.
	MaxAttempts = 80

	baseDelay = 1000 * time.Millisecond
	maxDelay  = 10000 * time.Millisecond
	factor    = 1.35
	jitterMax = 200 * time.Millisecond
)

// Fetcher queries reply status. *api.Client satisfies this.
type Fetcher interface {
	ReplyStatus(ctx context.Context, messageID string) (*api.StatusResponse, error)
}

// Sink receives transition requests. *lifecycle.Controller satisfies
// this; the scheduler never touches message state directly.
type Sink interface {
	IsTerminal(id string) bool
	CompleteReady(id, text string, tok *cancel.Token) bool
	RequestTimeout(id string, tok *cancel.Token) bool
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler runs one polling task per message id. Starting a new task
// for an id supersedes the previous one through label-based token
// replacement, so stale responses cannot overwrite newer state.
type Scheduler struct {
	fetcher  Fetcher
	registry *cancel.Registry
	sink     Sink

	maxAttempts int
	base        time.Duration
	cap         time.Duration
	jitter      time.Duration
}

// NewScheduler creates a scheduler with the standard backoff settings.
func NewScheduler(fetcher Fetcher, registry *cancel.Registry, sink Sink) *Scheduler {
	return &Scheduler{
		fetcher:     fetcher,
		registry:    registry,
		sink:        sink,
		maxAttempts: MaxAttempts,
		base:        baseDelay,
		cap:         maxDelay,
		jitter:      jitterMax,
	}
}

// WithBackoff overrides the backoff tuning. Used by tests and exposed
// through configuration.
func (s *Scheduler) WithBackoff(maxAttempts int, base, cap, jitter time.Duration) *Scheduler {
	s.maxAttempts = maxAttempts
	s.base = base
	s.cap = cap
	s.jitter = jitter
	return s
}

// Start begins polling for a message id. The first attempt fires
// immediately. Returns without doing anything if the pair is already
// terminal. Safe to call concurrently for the same id: acquiring the
// poll label invalidates the prior task's token, and the prior task
// stops at its next liveness check.
func (s *Scheduler) Start(id string) {
	if s.sink.IsTerminal(id) {
		return
	}
	tok := s.registry.Acquire(cancel.LabelPoll(id))
	go s.run(id, tok)
}

// run is the polling task for one message.
func (s *Scheduler) run(id string, tok *cancel.Token) {
	label := tok.Label()

	for attempt := 0; ; attempt++ {
		resp, err := s.fetcher.ReplyStatus(tok.Context(), id)

		if tok.Canceled() {
			// Canceled mid-flight; whoever canceled owns the state.
			return
		}

		if err == nil && resp.Ready() {
			s.sink.CompleteReady(id, resp.Text, tok)
			s.registry.Release(label, "done")
			return
		}
		if errors.Is(err, context.Canceled) {
			// Canceled while the request was in flight; whoever canceled
			// owns the state.
			return
		}

		if attempt >= s.maxAttempts {
			s.sink.RequestTimeout(id, tok)
			s.registry.Release(label, "timeout")
			return
		}

		timer := time.NewTimer(s.delay(attempt))
		s.registry.TrackTimer(timer)
		select {
		case <-timer.C:
			s.registry.ClearTimer(timer)
		case <-tok.Done():
			timer.Stop()
			s.registry.ClearTimer(timer)
			return
		}

		// A newer task (or ReleaseAll) may have superseded us while the
		// timer was pending; never schedule another attempt in that case.
		if !s.registry.IsLive(tok) {
			return
		}
	}
}

// delay computes the backoff for one attempt: bounded exponential
// growth plus jitter.
func (s *Scheduler) delay(attempt int) time.Duration {
	// float64(s.base)*factor^attempt exceeds int64 for large attempts;
	// the conversion then yields a garbage (possibly negative) duration,
	// so clamp anything outside (0, cap] to the cap.
	backoff := time.Duration(float64(s.base) * math.Pow(factor, float64(attempt)))
	if backoff <= 0 || backoff > s.cap {
		backoff = s.cap
	}
	if s.jitter > 0 {
		backoff += time.Duration(rand.Int63n(int64(s.jitter)))
	}
	return backoff
}
