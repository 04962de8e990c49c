// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lifecycle

import (
	"log"
	"sync"

	"github.com/lamnguyen92/vichat-tui/internal/model"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType identifies what happened to the conversation.
type EventType string

const (
	// EventAppended indicates a new pair was added to the conversation.
	EventAppended EventType = "appended"

	// EventStateChanged indicates a pair's reply state changed.
	EventStateChanged EventType = "state-changed"

	// EventReconciled indicates a pair's identifier was renamed
	// (provisional to server, or server to server on edit/regenerate).
	EventReconciled EventType = "reconciled"

	// EventTruncated indicates downstream pairs were removed ahead of an
	// edit or regenerate.
	EventTruncated EventType = "truncated"
)

// Event is a fire-and-forget broadcast about one conversation change.
type Event struct {
	Type  EventType
	ID    string
	OldID string           // EventReconciled only
	State model.ReplyState // EventStateChanged only

	// Removed lists the pair ids deleted by an EventTruncated.
	Removed []string
}

// =============================================================================
// EVENT BUS
// =============================================================================

// busBuffer is the per-subscriber channel depth. Slow subscribers drop
// events rather than blocking the controller.
const busBuffer = 64

// Bus is a typed broadcast channel for conversation events. Any
// interested component subscribes; publishing never blocks.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new listener and returns its channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, busBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish broadcasts an event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := append([]chan Event(nil), b.subs...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			log.Printf("WARNING: event bus subscriber full, dropped %s for %s", ev.Type, ev.ID)
		}
	}
}
