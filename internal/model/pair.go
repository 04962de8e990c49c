// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// REPLY STATE
// =============================================================================

// ReplyState represents the current state of a pair's AI turn.
type ReplyState string

const (
	// ReplyQueued indicates the pair was rendered optimistically but the
	// server has not accepted the send yet.
	ReplyQueued ReplyState = "queued"

	// ReplyPending indicates the server accepted the request and the
	// reply is being produced asynchronously.
	ReplyPending ReplyState = "pending"

	// ReplyReady indicates the final reply text has arrived.
	ReplyReady ReplyState = "ready"

	// ReplyCanceled indicates the user canceled the operation. Not an
	// error: a deliberate terminal state.
	ReplyCanceled ReplyState = "canceled"

	// ReplyFailed indicates the send/edit/regenerate call failed before
	// polling ever started.
	ReplyFailed ReplyState = "failed"

	// ReplyTimeout indicates the polling attempt ceiling was exhausted.
	// Equivalent to canceled for display, distinct for diagnostics.
	ReplyTimeout ReplyState = "timeout"
)

// String returns the string representation of the reply state.
func (s ReplyState) String() string {
	return string(s)
}

// Terminal reports whether the state is terminal. A new operation
// (edit or regenerate) is required to leave a terminal state.
func (s ReplyState) Terminal() bool {
	switch s {
	case ReplyReady, ReplyCanceled, ReplyFailed, ReplyTimeout:
		return true
	default:
		return false
	}
}

// Inline markers rendered in place of the AI turn's content for
// terminal non-ready states.
const (
	CanceledMarker = "— reply canceled —"
	TimeoutMarker  = "— reply timed out —"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBadTransition is returned for a reply state change the state
	// machine does not allow.
	ErrBadTransition = errors.New("invalid reply state transition")

	// ErrAlreadyReconciled is returned when a pair's provisional
	// identifier has already been replaced by a server identifier.
	ErrAlreadyReconciled = errors.New("pair already reconciled")

	// ErrNotReconciled is returned when a server-to-server rename is
	// requested for a pair that still has its provisional identifier.
	ErrNotReconciled = errors.New("pair not reconciled yet")
)

// =============================================================================
// MESSAGE PAIR
// =============================================================================

// provisionalPrefix marks client-generated identifiers.
const provisionalPrefix = "local-"

// Pair represents one user turn plus its associated AI turn.
// All methods are safe for concurrent use.
type Pair struct {
	mu sync.RWMutex

	// Identity
	id          string
	provisional bool

	// User turn
	userText    string
	attachments []Attachment

	// Alternate user-turn contents (display/navigation only)
	versions       []string
	versionCurrent int // 1-based

	// AI turn
	replyText string
	state     ReplyState

	createdAt time.Time
	updatedAt time.Time
}

// NewPair creates a pair with a provisional identifier and a queued
// AI turn.
func NewPair(userText string, attachments []Attachment) *Pair {
	now := time.Now()
	return &Pair{
		id:             provisionalPrefix + uuid.New().String(),
		provisional:    true,
		userText:       userText,
		attachments:    append([]Attachment(nil), attachments...),
		versions:       []string{userText},
		versionCurrent: 1,
		state:          ReplyQueued,
		createdAt:      now,
		updatedAt:      now,
	}
}

// RestorePair rebuilds a pair from a persisted snapshot. A restart
// cannot resume polling, so queued and pending replies come back as
// canceled.
func RestorePair(snap Snapshot) *Pair {
	state := snap.State
	if !state.Terminal() {
		state = ReplyCanceled
	}
	versions := []string{snap.UserText}
	return &Pair{
		id:             snap.ID,
		provisional:    snap.Provisional,
		userText:       snap.UserText,
		attachments:    append([]Attachment(nil), snap.Attachments...),
		versions:       versions,
		versionCurrent: 1,
		replyText:      snap.ReplyText,
		state:          state,
		createdAt:      snap.CreatedAt,
		updatedAt:      snap.UpdatedAt,
	}
}

// =============================================================================
// IDENTITY
// =============================================================================

// ID returns the pair's current identifier.
func (p *Pair) ID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id
}

// Provisional reports whether the pair still carries its
// client-generated identifier.
func (p *Pair) Provisional() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.provisional
}

// Reconcile replaces the provisional identifier with the server-assigned
// one. A pair's identifier is mutable this way exactly once.
func (p *Pair) Reconcile(serverID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.provisional {
		return fmt.Errorf("%w: %s", ErrAlreadyReconciled, p.id)
	}
	p.id = serverID
	p.provisional = false
	p.updatedAt = time.Now()
	return nil
}

// Rename replaces one server identifier with another. Edit and
// regenerate may be answered with a fresh identifier for the AI turn;
// this is a rebind, not a second reconciliation.
func (p *Pair) Rename(serverID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provisional {
		return fmt.Errorf("%w: %s", ErrNotReconciled, p.id)
	}
	p.id = serverID
	p.updatedAt = time.Now()
	return nil
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// State returns the current reply state.
func (p *Pair) State() ReplyState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// TransitionTo moves the AI turn to next, validating the transition.
// Only the lifecycle controller should call this.
func (p *Pair) TransitionTo(next ReplyState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !validTransition(p.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, p.state, next)
	}
	p.state = next
	p.updatedAt = time.Now()
	return nil
}

// validTransition checks the reply state machine.
// Transitions are monotonic except that edit and regenerate reset a
// terminal state back to pending.
func validTransition(from, to ReplyState) bool {
	if from == to {
		// Idempotent
		return true
	}

	switch from {
	case ReplyQueued:
		return to == ReplyPending || to == ReplyFailed || to == ReplyCanceled
	case ReplyPending:
		return to == ReplyReady || to == ReplyCanceled || to == ReplyFailed || to == ReplyTimeout
	case ReplyReady, ReplyCanceled, ReplyFailed, ReplyTimeout:
		return to == ReplyPending
	default:
		return false
	}
}

// =============================================================================
// CONTENT
// =============================================================================

// UserText returns the current user turn content.
func (p *Pair) UserText() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userText
}

// Attachments returns a copy of the user turn's attachments.
func (p *Pair) Attachments() []Attachment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Attachment(nil), p.attachments...)
}

// ReplyText returns the AI turn content (final text, or a marker for
// terminal non-ready states).
func (p *Pair) ReplyText() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.replyText
}

// SetReplyText replaces the AI turn content.
func (p *Pair) SetReplyText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyText = text
	p.updatedAt = time.Now()
}

// SetUserText replaces the user turn content and records the previous
// content as an alternate version.
func (p *Pair) SetUserText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userText = text
	p.versions = append(p.versions, text)
	p.versionCurrent = len(p.versions)
	p.updatedAt = time.Now()
}

// CreatedAt returns when the pair was created.
func (p *Pair) CreatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.createdAt
}

// UpdatedAt returns when the pair last changed.
func (p *Pair) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// Preview returns a truncated, newline-free preview of the user turn.
// Rune-based so Vietnamese text truncates cleanly.
func (p *Pair) Preview(maxLen int) string {
	content := strings.ReplaceAll(p.UserText(), "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// VERSION NAVIGATION
// =============================================================================

// Version returns the 1-based current version and the total count of
// alternate user-turn contents. Display only; does not affect reply
// correctness.
func (p *Pair) Version() (current, total int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.versionCurrent, len(p.versions)
}

// PrevVersion moves the display counter to the previous alternate
// content. Returns false at the first version.
func (p *Pair) PrevVersion() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.versionCurrent <= 1 {
		return false
	}
	p.versionCurrent--
	p.userText = p.versions[p.versionCurrent-1]
	return true
}

// NextVersion moves the display counter to the next alternate content.
// Returns false at the last version.
func (p *Pair) NextVersion() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.versionCurrent >= len(p.versions) {
		return false
	}
	p.versionCurrent++
	p.userText = p.versions[p.versionCurrent-1]
	return true
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a read-only copy of a pair for rendering and persistence.
type Snapshot struct {
	ID             string
	Provisional    bool
	UserText       string
	Attachments    []Attachment
	ReplyText      string
	State          ReplyState
	VersionCurrent int
	VersionTotal   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Snapshot returns a consistent copy of the pair.
func (p *Pair) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		ID:             p.id,
		Provisional:    p.provisional,
		UserText:       p.userText,
		Attachments:    append([]Attachment(nil), p.attachments...),
		ReplyText:      p.replyText,
		State:          p.state,
		VersionCurrent: p.versionCurrent,
		VersionTotal:   len(p.versions),
		CreatedAt:      p.createdAt,
		UpdatedAt:      p.updatedAt,
	}
}
