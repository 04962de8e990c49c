// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"errors"
	"log"
	"os/exec"
	"sync"
)

// ===== COMMAND BACKEND =====

// ErrNoSpeechCommand is returned when no platform speech command is
// installed.
var ErrNoSpeechCommand = errors.New("speech: no speech command found (tried say, espeak-ng, espeak)")

// speakJob is one queued utterance. Jobs from a canceled generation
// are drained without being spoken; done still fires so the session
// manager's bookkeeping settles.
type speakJob struct {
	u    Utterance
	done func()
	gen  uint64
}

// CommandSynthesizer speaks through an external speech command: say on
// macOS, espeak-ng or espeak elsewhere. One worker goroutine plays the
// queue in order.
type CommandSynthesizer struct {
	binary string
	voices []Voice

	mu     sync.Mutex
	gen    uint64
	cur    *exec.Cmd
	paused bool

	jobs chan speakJob
}

// commandCandidates in probe order. say is macOS-only but LookPath
// settles that for free.
var commandCandidates = []string{"say", "espeak-ng", "espeak"}

// NewCommandSynthesizer probes for an installed speech command and
// returns a backend bound to it.
func NewCommandSynthesizer() (*CommandSynthesizer, error) {
	for _, name := range commandCandidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		s := &CommandSynthesizer{
			binary: path,
			voices: voicesFor(name),
			jobs:   make(chan speakJob, 64),
		}
		go s.worker()
		return s, nil
	}
	return nil, ErrNoSpeechCommand
}

// voicesFor reports the voice inventory each command is known to carry.
// espeak synthesizes any language from phoneme rules, so both tags are
// always present; say depends on the installed system voices, where
// Linh (vi) and Samantha (en) are the common defaults.
func voicesFor(binary string) []Voice {
	if binary == "say" {
		return []Voice{
			{Name: "Linh", Lang: "vi-VN"},
			{Name: "Samantha", Lang: "en-US"},
		}
	}
	return []Voice{
		{Name: "vi", Lang: "vi"},
		{Name: "en-us", Lang: "en-US"},
	}
}

func (s *CommandSynthesizer) Voices() []Voice {
	out := make([]Voice, len(s.voices))
	copy(out, s.voices)
	return out
}

// Speak enqueues one utterance. Playback order follows enqueue order.
func (s *CommandSynthesizer) Speak(u Utterance, done func()) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	select {
	case s.jobs <- speakJob{u: u, done: done, gen: gen}:
	default:
		// Queue full; drop rather than block the caller. The done
		// callback keeps the session's counter honest, but it re-enters
		// the session manager, which may be calling Speak with its lock
		// held. Fire it from its own goroutine.
		go done()
	}
}

// Pause suspends the currently playing process. No-op when idle or on
// platforms without process suspension.
func (s *CommandSynthesizer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil && !s.paused {
		if err := suspendProcess(s.cur); err == nil {
			s.paused = true
		}
	}
}

// Resume continues a paused process.
func (s *CommandSynthesizer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil && s.paused {
		if err := resumeProcess(s.cur); err == nil {
			s.paused = false
		}
	}
}

// Cancel kills the current process and invalidates everything queued.
func (s *CommandSynthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cur != nil {
		if s.paused {
			resumeProcess(s.cur)
			s.paused = false
		}
		s.cur.Process.Kill()
	}
}

// worker plays queued utterances one at a time.
func (s *CommandSynthesizer) worker() {
	for job := range s.jobs {
		s.mu.Lock()
		stale := job.gen != s.gen
		s.mu.Unlock()
		if !stale {
			s.play(job.u)
		}
		job.done()
	}
}

// play runs one speech command to completion (or until killed).
func (s *CommandSynthesizer) play(u Utterance) {
	cmd := s.buildCommand(u)

	s.mu.Lock()
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		log.Printf("speech: %s failed to start: %v", s.binary, err)
		return
	}
	s.cur = cmd
	s.mu.Unlock()

	cmd.Wait()

	s.mu.Lock()
	s.cur = nil
	s.paused = false
	s.mu.Unlock()
}

// buildCommand assembles the invocation. say and the espeak family
// happen to share the -v voice flag and trailing-text convention.
func (s *CommandSynthesizer) buildCommand(u Utterance) *exec.Cmd {
	return exec.Command(s.binary, "-v", u.Voice.Name, u.Text)
}
