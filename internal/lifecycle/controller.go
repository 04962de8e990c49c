// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lifecycle

import (
	"errors"
	"log"
	"sync"

	"github.com/lamnguyen92/vichat-tui/internal/cancel"
	"github.com/lamnguyen92/vichat-tui/internal/model"
)

// ErrPairNotFound is returned when an operation targets an unknown
// pair id.
var ErrPairNotFound = errors.New("message pair not found")

// HistoryStore persists pairs. Persistence is best effort: store
// failures are logged, never surfaced into message state.
type HistoryStore interface {
	// SavePair upserts a pair at its position in the conversation.
	SavePair(seq int, snap model.Snapshot) error

	// Rename retargets a stored pair to a new identifier.
	Rename(oldID, newID string) error

	// DeleteAfter removes every pair that appears after id.
	DeleteAfter(id string) error
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the ordered conversation and all reply state
// transitions. All methods are safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	pairs    []*model.Pair
	registry *cancel.Registry
	store    HistoryStore // may be nil
	bus      *Bus
}

// NewController creates a controller. store may be nil to disable
// persistence.
func NewController(registry *cancel.Registry, store HistoryStore, bus *Bus) *Controller {
	if bus == nil {
		bus = NewBus()
	}
	return &Controller{
		registry: registry,
		store:    store,
		bus:      bus,
	}
}

// Bus returns the controller's event bus.
func (c *Controller) Bus() *Bus {
	return c.bus
}

// =============================================================================
// CONVERSATION ACCESS
// =============================================================================

// Append adds a pair to the end of the conversation.
func (c *Controller) Append(p *model.Pair) {
	c.mu.Lock()
	c.pairs = append(c.pairs, p)
	seq := len(c.pairs) - 1
	c.mu.Unlock()

	c.persist(seq, p)
	c.bus.Publish(Event{Type: EventAppended, ID: p.ID()})
}

// Restore preloads pairs from persisted history. Meant for startup,
// before any subscriber exists: nothing is re-persisted and no events
// are published.
func (c *Controller) Restore(pairs []*model.Pair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs = append(c.pairs, pairs...)
}

// Get returns the pair with the given id, or nil.
func (c *Controller) Get(id string) *model.Pair {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, p := c.findLocked(id)
	return p
}

// Pairs returns a snapshot of the conversation in order.
func (c *Controller) Pairs() []model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Snapshot, len(c.pairs))
	for i, p := range c.pairs {
		out[i] = p.Snapshot()
	}
	return out
}

// Len returns the number of pairs in the conversation.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pairs)
}

// IsTerminal reports whether the pair's reply state is terminal.
// Unknown ids count as terminal so callers skip work for them.
func (c *Controller) IsTerminal(id string) bool {
	p := c.Get(id)
	if p == nil {
		return true
	}
	return p.State().Terminal()
}

// findLocked returns the index and pair for id. Must hold c.mu.
func (c *Controller) findLocked(id string) (int, *model.Pair) {
	for i, p := range c.pairs {
		if p.ID() == id {
			return i, p
		}
	}
	return -1, nil
}

// =============================================================================
// IDENTIFIER RECONCILIATION
// =============================================================================

// Reconcile replaces a pair's provisional identifier with the
// server-assigned one and retargets every label the old id owned, so
// in-flight work is renamed rather than orphaned.
func (c *Controller) Reconcile(provisionalID, serverID string) error {
	c.mu.Lock()
	seq, p := c.findLocked(provisionalID)
	c.mu.Unlock()
	if p == nil {
		return ErrPairNotFound
	}

	if err := p.Reconcile(serverID); err != nil {
		return err
	}
	c.retargetLabels(provisionalID, serverID)

	if c.store != nil {
		if err := c.store.Rename(provisionalID, serverID); err != nil {
			log.Printf("history rename failed (ignored): %v", err)
		}
	}
	c.persist(seq, p)
	c.bus.Publish(Event{Type: EventReconciled, ID: serverID, OldID: provisionalID})
	return nil
}

// Rebind renames a reconciled pair to a fresh server identifier, as
// edit and regenerate responses may issue one.
func (c *Controller) Rebind(oldID, serverID string) error {
	if oldID == serverID {
		return nil
	}
	c.mu.Lock()
	seq, p := c.findLocked(oldID)
	c.mu.Unlock()
	if p == nil {
		return ErrPairNotFound
	}

	if err := p.Rename(serverID); err != nil {
		return err
	}
	c.retargetLabels(oldID, serverID)

	if c.store != nil {
		if err := c.store.Rename(oldID, serverID); err != nil {
			log.Printf("history rename failed (ignored): %v", err)
		}
	}
	c.persist(seq, p)
	c.bus.Publish(Event{Type: EventReconciled, ID: serverID, OldID: oldID})
	return nil
}

// retargetLabels renames every live registry label keyed by oldID.
func (c *Controller) retargetLabels(oldID, newID string) {
	if c.registry == nil {
		return
	}
	c.registry.Rename(cancel.LabelSend(oldID), cancel.LabelSend(newID))
	c.registry.Rename(cancel.LabelPoll(oldID), cancel.LabelPoll(newID))
	c.registry.Rename(cancel.LabelEdit(oldID), cancel.LabelEdit(newID))
	c.registry.Rename(cancel.LabelRedo(oldID), cancel.LabelRedo(newID))
}

// =============================================================================
// REQUESTED TRANSITIONS
// =============================================================================

// Accept moves a queued pair to pending after the server accepted the
// initiating request.
func (c *Controller) Accept(id string) error {
	return c.transition(id, model.ReplyPending, "")
}

// CompleteReady attaches the final reply text and moves the pair to
// ready. tok, when non-nil, must still be the live token for its
// label; otherwise the request is refused (a superseding operation or
// cancellation won the race). Returns true if the transition applied.
func (c *Controller) CompleteReady(id, text string, tok *cancel.Token) bool {
	if !c.tokenLive(tok) {
		return false
	}
	p := c.Get(id)
	if p == nil || p.State() != model.ReplyPending {
		return false
	}
	if err := c.transition(id, model.ReplyReady, text); err != nil {
		return false
	}
	return true
}

// RequestTimeout moves a pending pair to timeout after the polling
// attempt ceiling was exhausted. Same liveness rules as CompleteReady.
func (c *Controller) RequestTimeout(id string, tok *cancel.Token) bool {
	if !c.tokenLive(tok) {
		return false
	}
	p := c.Get(id)
	if p == nil || p.State() != model.ReplyPending {
		return false
	}
	if err := c.transition(id, model.ReplyTimeout, model.TimeoutMarker); err != nil {
		return false
	}
	return true
}

// MarkFailed moves a queued or pending pair to failed with a
// reason-specific message in place of the reply.
func (c *Controller) MarkFailed(id, message string) error {
	return c.transition(id, model.ReplyFailed, message)
}

// Cancel cancels a single pair if its reply is still in flight.
// Returns true if the pair was canceled.
func (c *Controller) Cancel(id string) bool {
	p := c.Get(id)
	if p == nil || p.State().Terminal() {
		return false
	}
	return c.transition(id, model.ReplyCanceled, model.CanceledMarker) == nil
}

// CancelAllPending marks every in-flight pair canceled in one
// synchronous pass and returns their ids. Callers combine this with
// Registry.ReleaseAll so UI and network state never disagree about
// what is still in flight.
func (c *Controller) CancelAllPending() []string {
	c.mu.Lock()
	inflight := make([]*model.Pair, 0)
	seqs := make([]int, 0)
	for i, p := range c.pairs {
		if !p.State().Terminal() {
			inflight = append(inflight, p)
			seqs = append(seqs, i)
		}
	}
	c.mu.Unlock()

	ids := make([]string, 0, len(inflight))
	for i, p := range inflight {
		if err := p.TransitionTo(model.ReplyCanceled); err != nil {
			continue
		}
		p.SetReplyText(model.CanceledMarker)
		ids = append(ids, p.ID())
		c.persist(seqs[i], p)
		c.bus.Publish(Event{Type: EventStateChanged, ID: p.ID(), State: model.ReplyCanceled})
	}
	return ids
}

// ResetForRetry moves a terminal pair back to pending ahead of an edit
// or regenerate.
func (c *Controller) ResetForRetry(id string) error {
	return c.transition(id, model.ReplyPending, "")
}

// transition applies one validated state change, optionally replacing
// the reply text, then persists and broadcasts.
func (c *Controller) transition(id string, next model.ReplyState, replyText string) error {
	c.mu.Lock()
	seq, p := c.findLocked(id)
	c.mu.Unlock()
	if p == nil {
		return ErrPairNotFound
	}

	if err := p.TransitionTo(next); err != nil {
		return err
	}
	if replyText != "" || next == model.ReplyPending {
		p.SetReplyText(replyText)
	}
	c.persist(seq, p)
	c.bus.Publish(Event{Type: EventStateChanged, ID: id, State: next})
	return nil
}

// tokenLive checks a requester's token against the registry. A nil
// token means the requester holds no cancellation handle (trusted
// internal call).
func (c *Controller) tokenLive(tok *cancel.Token) bool {
	if tok == nil {
		return true
	}
	if c.registry == nil {
		return !tok.Canceled()
	}
	return c.registry.IsLive(tok)
}

// =============================================================================
// HISTORY TRUNCATION
// =============================================================================

// TruncateAfter removes every pair that appears after id in the
// conversation and returns the removed ids. Edit and regenerate call
// this first, because downstream turns causally depended on the old
// AI turn.
func (c *Controller) TruncateAfter(id string) ([]string, error) {
	c.mu.Lock()
	idx, p := c.findLocked(id)
	if p == nil {
		c.mu.Unlock()
		return nil, ErrPairNotFound
	}
	removed := make([]string, 0, len(c.pairs)-idx-1)
	for _, rp := range c.pairs[idx+1:] {
		removed = append(removed, rp.ID())
	}
	c.pairs = c.pairs[:idx+1]
	c.mu.Unlock()

	if len(removed) == 0 {
		return nil, nil
	}
	if c.store != nil {
		if err := c.store.DeleteAfter(id); err != nil {
			log.Printf("history truncate failed (ignored): %v", err)
		}
	}
	c.bus.Publish(Event{Type: EventTruncated, ID: id, Removed: removed})
	return removed, nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persist saves a pair if a store is configured. Best effort.
func (c *Controller) persist(seq int, p *model.Pair) {
	if c.store == nil || seq < 0 {
		return
	}
	if err := c.store.SavePair(seq, p.Snapshot()); err != nil {
		log.Printf("history save failed (ignored): %v", err)
	}
}
