// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cancel

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// LABELS
// =============================================================================

// Well-known label constructors. Labels are plain strings so callers can
// also build their own, but the engine sticks to these five shapes.

// LabelSend returns the label for an outbound send operation.
func LabelSend(id string) string { return "send:" + id }

// LabelPoll returns the label for a reply polling loop.
func LabelPoll(id string) string { return "poll:" + id }

// LabelEdit returns the label for an edit operation.
func LabelEdit(id string) string { return "edit:" + id }

// LabelRedo returns the label for a regenerate operation.
func LabelRedo(id string) string { return "redo:" + id }

// LabelModels is the label for the model list fetch.
const LabelModels = "models:list"

// =============================================================================
// TOKEN
// =============================================================================

// Token is a cancellation handle for one labeled operation. Its Context
// is passed to network calls; cancelling the token aborts them.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	label  string
	reason string
}

// Label returns the label this token is currently registered under.
// Rename can retarget a live token, so the label is read under lock.
func (t *Token) Label() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.label
}

func (t *Token) setLabel(label string) {
	t.mu.Lock()
	t.label = label
	t.mu.Unlock()
}

// Context returns the context carrying this token's cancellation signal.
func (t *Token) Context() context.Context { return t.ctx }

// Done returns a channel closed when the token is canceled.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Canceled reports whether the token has been canceled.
func (t *Token) Canceled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Reason returns the reason recorded when the token was canceled, or ""
// if it is still live.
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// cancelWith cancels the token and records the reason (first one wins).
func (t *Token) cancelWith(reason string) {
	t.mu.Lock()
	if t.reason == "" {
		t.reason = reason
	}
	t.mu.Unlock()
	t.cancel()
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry owns one token per label and a set of pending timers.
// All methods are safe for concurrent use. A Registry must be created
// with NewRegistry.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
	timers map[*time.Timer]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tokens: make(map[string]*Token),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Acquire invalidates and replaces any existing token under label and
// returns a fresh live token. The invariant is replace-on-acquire:
// after Acquire returns, the returned token is the only live token for
// that label.
func (r *Registry) Acquire(label string) *Token {
	ctx, cancelFn := context.WithCancel(context.Background())
	tok := &Token{label: label, ctx: ctx, cancel: cancelFn}

	r.mu.Lock()
	prev := r.tokens[label]
	r.tokens[label] = tok
	r.mu.Unlock()

	if prev != nil {
		prev.cancelWith("superseded")
	}
	return tok
}

// Get returns the live token for label without mutating the registry,
// or nil if none exists.
func (r *Registry) Get(label string) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[label]
}

// IsLive reports whether tok is still the registered token for its
// label. Components check this before scheduling further work so a
// superseded operation cannot queue another attempt.
func (r *Registry) IsLive(tok *Token) bool {
	if tok == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[tok.Label()] == tok
}

// Release cancels and removes the token for label if present.
// Idempotent: releasing an absent label is a no-op.
func (r *Registry) Release(label, reason string) {
	r.mu.Lock()
	tok := r.tokens[label]
	delete(r.tokens, label)
	r.mu.Unlock()

	if tok != nil {
		tok.cancelWith(reason)
	}
}

// ReleaseAll cancels every live token and stops every tracked timer.
// Idempotent and safe to call with nothing pending.
func (r *Registry) ReleaseAll(reason string) {
	r.mu.Lock()
	toks := make([]*Token, 0, len(r.tokens))
	for _, tok := range r.tokens {
		toks = append(toks, tok)
	}
	r.tokens = make(map[string]*Token)

	for timer := range r.timers {
		timer.Stop()
	}
	r.timers = make(map[*time.Timer]struct{})
	r.mu.Unlock()

	for _, tok := range toks {
		tok.cancelWith(reason)
	}
}

// Rename retargets a live token from oldLabel to newLabel, keeping it
// live. Used when a provisional message identifier is reconciled with
// the server-assigned one so in-flight work is not orphaned. Any token
// already under newLabel is canceled. Returns false if oldLabel has no
// live token.
func (r *Registry) Rename(oldLabel, newLabel string) bool {
	r.mu.Lock()
	tok, ok := r.tokens[oldLabel]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.tokens, oldLabel)
	displaced := r.tokens[newLabel]
	tok.setLabel(newLabel)
	r.tokens[newLabel] = tok
	r.mu.Unlock()

	if displaced != nil {
		displaced.cancelWith("superseded")
	}
	return true
}

// =============================================================================
// TIMER TRACKING
// =============================================================================

// TrackTimer registers a pending timer so ReleaseAll can sweep it.
// Returns the same handle for convenience.
func (r *Registry) TrackTimer(timer *time.Timer) *time.Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers[timer] = struct{}{}
	return timer
}

// ClearTimer deregisters a timer after it has fired or been stopped.
// Idempotent.
func (r *Registry) ClearTimer(timer *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timers, timer)
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// LiveCount returns the number of live tokens.
func (r *Registry) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// TimerCount returns the number of tracked timers.
func (r *Registry) TimerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
