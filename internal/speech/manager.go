// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"errors"
	"log"
	"sync"
)

// ===== SYNTHESIZER BACKEND =====

// Utterance is one voiced chunk of text.
type Utterance struct {
	Text  string
	Voice Voice
}

// Synthesizer is the playback backend. Speak queues a single utterance
// and invokes done from the playback goroutine when it finishes or is
// canceled. Cancel drops everything queued.
type Synthesizer interface {
	Voices() []Voice
	Speak(u Utterance, done func())
	Pause()
	Resume()
	Cancel()
}

// ===== SESSION MANAGER =====

// State of the active session.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// ErrNoSpeakableText is returned when the input contains no Vietnamese
// or English run at all.
var ErrNoSpeakableText = errors.New("speech: no supported language detected")

// Manager owns the single playback session. Toggle for a new message
// stops whatever was playing before starting; Toggle for the current
// message alternates play and pause.
type Manager struct {
	mu    sync.Mutex
	synth Synthesizer

	activeID string
	state    State
	epoch    uint64 // invalidates done callbacks from stopped sessions
	queued   int

	preferred      map[Lang]string
	warnedFallback bool
}

func NewManager(synth Synthesizer) *Manager {
	return &Manager{synth: synth, state: StateIdle}
}

// WithPreferredVoices pins configured voice names per language; they are
// consulted before the automatic cascade. Empty names keep the
// automatic choice.
func (m *Manager) WithPreferredVoices(vi, en string) *Manager {
	m.preferred = map[Lang]string{LangVietnamese: vi, LangEnglish: en}
	return m
}

// ActiveMessage returns the id of the message being read, or "".
func (m *Manager) ActiveMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		return ""
	}
	return m.activeID
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Toggle starts, pauses, or resumes reading for a message.
func (m *Manager) Toggle(messageID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeID == messageID && m.state != StateIdle {
		switch m.state {
		case StatePlaying:
			m.synth.Pause()
			m.state = StatePaused
		case StatePaused:
			m.synth.Resume()
			m.state = StatePlaying
		}
		return nil
	}

	// Different message or fresh start: exactly one session may exist.
	m.stopLocked()
	return m.startLocked(messageID, text)
}

// Stop cancels playback and clears the message binding. Safe to call
// at any time, from any state.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.state == StateIdle && m.activeID == "" {
		return
	}
	m.epoch++
	m.synth.Cancel()
	m.activeID = ""
	m.state = StateIdle
	m.queued = 0
}

func (m *Manager) startLocked(messageID, text string) error {
	utterances, err := m.planLocked(text)
	if err != nil {
		return err
	}

	m.epoch++
	epoch := m.epoch
	m.activeID = messageID
	m.state = StatePlaying
	m.queued = len(utterances)

	for _, u := range utterances {
		m.synth.Speak(u, func() { m.utteranceDone(epoch) })
	}
	return nil
}

// planLocked segments text and binds each supported run to a voice.
// Refuses when no run is speakable.
func (m *Manager) planLocked(text string) ([]Utterance, error) {
	voices := m.synth.Voices()

	var out []Utterance
	for _, seg := range Split(text) {
		if seg.Lang == LangUnsupported {
			continue
		}
		voice, ok := SelectVoiceNamed(voices, seg.Lang, m.preferred[seg.Lang])
		spoken := seg.Text
		if !ok && seg.Lang == LangVietnamese {
			// Read the diacritic-stripped skeleton with an English
			// voice rather than skipping the run.
			if voice, ok = SelectVoiceNamed(voices, LangEnglish, m.preferred[LangEnglish]); ok {
				spoken = StripDiacritics(seg.Text)
				if !m.warnedFallback {
					m.warnedFallback = true
					log.Printf("speech: no Vietnamese voice installed, falling back to diacritic-stripped playback")
				}
			}
		}
		if !ok {
			continue
		}
		out = append(out, Utterance{Text: spoken, Voice: voice})
	}
	if len(out) == 0 {
		return nil, ErrNoSpeakableText
	}
	return out, nil
}

// utteranceDone is called by the backend as each utterance finishes.
// Callbacks from a superseded session carry a stale epoch and are
// ignored.
func (m *Manager) utteranceDone(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return
	}
	if m.queued > 0 {
		m.queued--
	}
	if m.queued == 0 {
		m.activeID = ""
		m.state = StateIdle
	}
}
