// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lamnguyen92/vichat-tui/internal/api"
	"github.com/lamnguyen92/vichat-tui/internal/cancel"
)

// fakeFetcher returns not-ready for the first readyAfter-1 calls, then
// ready with the given text.
type fakeFetcher struct {
	mu         sync.Mutex
	calls      int
	readyAfter int // 0 = never
	text       string
	err        error
}

func (f *fakeFetcher) ReplyStatus(ctx context.Context, id string) (*api.StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.readyAfter > 0 && f.calls >= f.readyAfter {
		return &api.StatusResponse{Status: "ready", Text: f.text}, nil
	}
	return &api.StatusResponse{Status: "processing"}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSink records requested transitions.
type fakeSink struct {
	terminal sync.Map // id -> bool
	ready    atomic.Int32
	timeout  atomic.Int32
	text     atomic.Value
	done     chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{done: make(chan struct{}, 4)}
}

func (s *fakeSink) IsTerminal(id string) bool {
	v, ok := s.terminal.Load(id)
	return ok && v.(bool)
}

func (s *fakeSink) CompleteReady(id, text string, tok *cancel.Token) bool {
	s.ready.Add(1)
	s.text.Store(text)
	s.done <- struct{}{}
	return true
}

func (s *fakeSink) RequestTimeout(id string, tok *cancel.Token) bool {
	s.timeout.Add(1)
	s.done <- struct{}{}
	return true
}

func (s *fakeSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not terminate in time")
	}
}

func fastScheduler(f Fetcher, reg *cancel.Registry, sink Sink, maxAttempts int) *Scheduler {
	return NewScheduler(f, reg, sink).
		WithBackoff(maxAttempts, time.Millisecond, 5*time.Millisecond, 0)
}

func TestReadyStopsPolling(t *testing.T) {
	reg := cancel.NewRegistry()
	fetcher := &fakeFetcher{readyAfter: 3, text: "hi"}
	sink := newFakeSink()

	fastScheduler(fetcher, reg, sink, 10).Start("m1")
	sink.wait(t)

	if got := sink.ready.Load(); got != 1 {
		t.Errorf("expected 1 ready transition, got %d", got)
	}
	if sink.text.Load() != "hi" {
		t.Errorf("expected payload 'hi', got %v", sink.text.Load())
	}
	if fetcher.callCount() != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", fetcher.callCount())
	}
	// Token released on success.
	time.Sleep(10 * time.Millisecond)
	if reg.LiveCount() != 0 {
		t.Errorf("expected no live tokens after completion, got %d", reg.LiveCount())
	}
}

func TestAttemptCeilingForcesTimeout(t *testing.T) {
	reg := cancel.NewRegistry()
	fetcher := &fakeFetcher{} // never ready
	sink := newFakeSink()

	const ceiling = 5
	fastScheduler(fetcher, reg, sink, ceiling).Start("m1")
	sink.wait(t)

	if got := sink.timeout.Load(); got != 1 {
		t.Errorf("expected 1 timeout transition, got %d", got)
	}
	// Attempts are 0-based: ceiling+1 queries total.
	if fetcher.callCount() != ceiling+1 {
		t.Errorf("expected %d attempts, got %d", ceiling+1, fetcher.callCount())
	}
	if sink.ready.Load() != 0 {
		t.Error("no ready transition expected")
	}
}

func TestTerminalPairNoOps(t *testing.T) {
	reg := cancel.NewRegistry()
	fetcher := &fakeFetcher{readyAfter: 1, text: "x"}
	sink := newFakeSink()
	sink.terminal.Store("m1", true)

	fastScheduler(fetcher, reg, sink, 10).Start("m1")

	time.Sleep(20 * time.Millisecond)
	if fetcher.callCount() != 0 {
		t.Errorf("terminal pair must not be polled, got %d calls", fetcher.callCount())
	}
	if reg.LiveCount() != 0 {
		t.Errorf("no token should be acquired, got %d", reg.LiveCount())
	}
}

func TestReleaseAllStopsScheduling(t *testing.T) {
	reg := cancel.NewRegistry()
	fetcher := &fakeFetcher{} // never ready
	sink := newFakeSink()

	// Long delays so the task parks on its backoff timer.
	NewScheduler(fetcher, reg, sink).
		WithBackoff(50, time.Hour, time.Hour, 0).
		Start("m1")

	// Let the first attempt land.
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("expected 1 attempt before stop, got %d", fetcher.callCount())
	}

	reg.ReleaseAll("stop")
	time.Sleep(20 * time.Millisecond)

	if fetcher.callCount() != 1 {
		t.Errorf("no further attempts after ReleaseAll, got %d", fetcher.callCount())
	}
	if sink.ready.Load() != 0 || sink.timeout.Load() != 0 {
		t.Error("canceled task must not request transitions")
	}
	if reg.TimerCount() != 0 {
		t.Errorf("expected swept timers, got %d", reg.TimerCount())
	}
}

func TestRestartSupersedesPriorTask(t *testing.T) {
	reg := cancel.NewRegistry()
	fetcher := &fakeFetcher{} // never ready
	sink := newFakeSink()

	sched := NewScheduler(fetcher, reg, sink).
		WithBackoff(50, time.Hour, time.Hour, 0)
	sched.Start("m1")

	deadline := time.Now().Add(2 * time.Second)
	for fetcher.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// Second Start replaces the first task's token; only one live
	// poll token may exist for the label.
	sched.Start("m1")
	time.Sleep(20 * time.Millisecond)

	if reg.LiveCount() != 1 {
		t.Errorf("expected exactly 1 live token, got %d", reg.LiveCount())
	}
	tok := reg.Get(cancel.LabelPoll("m1"))
	if tok == nil || tok.Canceled() {
		t.Error("replacement token should be live")
	}
}

func TestBackoffDelayIsBoundedAndNonDecreasing(t *testing.T) {
	s := NewScheduler(nil, cancel.NewRegistry(), newFakeSink())
	s.jitter = 0 // deterministic

	prev := time.Duration(0)
	for attempt := 0; attempt <= MaxAttempts; attempt++ {
		d := s.delay(attempt)
		if d <= 0 {
			t.Fatalf("delay not positive at attempt %d: %v", attempt, d)
		}
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > maxDelay {
			t.Fatalf("delay exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}

	if s.delay(0) != baseDelay {
		t.Errorf("attempt 0 delay should be %v, got %v", baseDelay, s.delay(0))
	}
	if s.delay(MaxAttempts) != maxDelay {
		t.Errorf("late attempts should hit the cap, got %v", s.delay(MaxAttempts))
	}
}

func TestJitterStaysWithinBound(t *testing.T) {
	s := NewScheduler(nil, cancel.NewRegistry(), newFakeSink())

	for i := 0; i < 100; i++ {
		d := s.delay(1)
		lo := time.Duration(float64(baseDelay) * factor)
		if d < lo || d > lo+jitterMax {
			t.Fatalf("attempt 1 delay %v outside [%v, %v]", d, lo, lo+jitterMax)
		}
	}
}
