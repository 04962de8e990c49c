// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cancel

import (
	"sync"
	"testing"
	"time"
)

func TestAcquireReplacesPriorToken(t *testing.T) {
	r := NewRegistry()

	first := r.Acquire(LabelPoll("m1"))
	second := r.Acquire(LabelPoll("m1"))

	if !first.Canceled() {
		t.Error("first token should be canceled after second acquire")
	}
	if second.Canceled() {
		t.Error("second token should be live")
	}
	if first.Reason() != "superseded" {
		t.Errorf("expected reason 'superseded', got %q", first.Reason())
	}
	if r.LiveCount() != 1 {
		t.Errorf("expected exactly 1 live token, got %d", r.LiveCount())
	}
	if r.IsLive(first) {
		t.Error("superseded token should not be live")
	}
	if !r.IsLive(second) {
		t.Error("replacement token should be live")
	}
}

func TestGetDoesNotMutate(t *testing.T) {
	r := NewRegistry()

	if r.Get("send:x") != nil {
		t.Error("Get on empty registry should return nil")
	}

	tok := r.Acquire("send:x")
	if r.Get("send:x") != tok {
		t.Error("Get should return the live token")
	}
	if tok.Canceled() {
		t.Error("Get must not cancel the token")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry()

	tok := r.Acquire("edit:m2")
	r.Release("edit:m2", "done")
	r.Release("edit:m2", "done")
	r.Release("never:acquired", "done")

	if !tok.Canceled() {
		t.Error("released token should be canceled")
	}
	if tok.Reason() != "done" {
		t.Errorf("expected reason 'done', got %q", tok.Reason())
	}
	if r.LiveCount() != 0 {
		t.Errorf("expected 0 live tokens, got %d", r.LiveCount())
	}
}

func TestReleaseAllSweepsTokensAndTimers(t *testing.T) {
	r := NewRegistry()

	toks := []*Token{
		r.Acquire(LabelPoll("a")),
		r.Acquire(LabelPoll("b")),
		r.Acquire(LabelSend("c")),
	}
	t1 := r.TrackTimer(time.NewTimer(time.Hour))
	t2 := r.TrackTimer(time.NewTimer(time.Hour))

	r.ReleaseAll("stop")

	for i, tok := range toks {
		if !tok.Canceled() {
			t.Errorf("token %d should be canceled after ReleaseAll", i)
		}
		if tok.Reason() != "stop" {
			t.Errorf("token %d: expected reason 'stop', got %q", i, tok.Reason())
		}
	}
	if r.LiveCount() != 0 {
		t.Errorf("expected 0 live tokens, got %d", r.LiveCount())
	}
	if r.TimerCount() != 0 {
		t.Errorf("expected 0 tracked timers, got %d", r.TimerCount())
	}

	// Safe to call again with nothing pending.
	r.ReleaseAll("stop")

	t1.Stop()
	t2.Stop()
}

func TestRenameKeepsTokenLive(t *testing.T) {
	r := NewRegistry()

	tok := r.Acquire(LabelPoll("local-1"))
	displaced := r.Acquire(LabelPoll("srv-9"))

	if !r.Rename(LabelPoll("local-1"), LabelPoll("srv-9")) {
		t.Fatal("Rename should succeed for a live token")
	}
	if tok.Canceled() {
		t.Error("renamed token must stay live")
	}
	if !displaced.Canceled() {
		t.Error("token displaced by rename should be canceled")
	}
	if r.Get(LabelPoll("srv-9")) != tok {
		t.Error("token should be reachable under the new label")
	}
	if r.Get(LabelPoll("local-1")) != nil {
		t.Error("old label should be empty after rename")
	}
	if tok.Label() != LabelPoll("srv-9") {
		t.Errorf("token label not updated: %q", tok.Label())
	}

	if r.Rename("poll:ghost", "poll:x") {
		t.Error("Rename of an absent label should return false")
	}
}

// Rename retargets a token's label while polling tasks read it through
// Label(); both sides must synchronize. Run with -race.
func TestConcurrentRenameAndLabelRead(t *testing.T) {
	r := NewRegistry()
	tok := r.Acquire(LabelPoll("prov-0"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			old := tok.Label()
			r.Rename(old, old+"x")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = tok.Label()
			r.IsLive(tok)
		}
	}()
	wg.Wait()

	if tok.Canceled() {
		t.Error("renamed token must stay live")
	}
	if !r.IsLive(tok) {
		t.Error("token should still be registered under its final label")
	}
}

func TestClearTimer(t *testing.T) {
	r := NewRegistry()

	timer := r.TrackTimer(time.NewTimer(time.Hour))
	if r.TimerCount() != 1 {
		t.Fatalf("expected 1 tracked timer, got %d", r.TimerCount())
	}
	r.ClearTimer(timer)
	r.ClearTimer(timer) // idempotent
	if r.TimerCount() != 0 {
		t.Errorf("expected 0 tracked timers, got %d", r.TimerCount())
	}
	timer.Stop()
}

func TestConcurrentAcquireSingleLive(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Acquire(LabelPoll("race"))
		}()
	}
	wg.Wait()

	if r.LiveCount() != 1 {
		t.Errorf("expected exactly 1 live token after concurrent acquires, got %d", r.LiveCount())
	}
	live := r.Get(LabelPoll("race"))
	if live == nil || live.Canceled() {
		t.Error("the surviving token should be live")
	}
}
