// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVoicesForCoverBothLanguages(t *testing.T) {
	for _, binary := range []string{"say", "espeak-ng", "espeak"} {
		voices := voicesFor(binary)

		vi, ok := SelectVoice(voices, LangVietnamese)
		require.True(t, ok, "%s must offer a Vietnamese voice", binary)
		require.NotEmpty(t, vi.Name)

		en, ok := SelectVoice(voices, LangEnglish)
		require.True(t, ok, "%s must offer an English voice", binary)
		require.NotEmpty(t, en.Name)
	}
}

func TestCommandSynthesizerVoicesIsACopy(t *testing.T) {
	s := &CommandSynthesizer{voices: voicesFor("espeak")}
	got := s.Voices()
	got[0].Name = "mutated"
	require.Equal(t, "vi", s.voices[0].Name)
}

// The session manager enqueues utterances while holding its own lock,
// and the done callback re-acquires that lock. A full queue must not
// run the callback on the caller's goroutine, or enqueueing deadlocks.
func TestSpeakFullQueueDoesNotBlockLockedCaller(t *testing.T) {
	s := &CommandSynthesizer{jobs: make(chan speakJob, 1)}
	s.jobs <- speakJob{} // no worker running, so the queue stays full

	var mu sync.Mutex
	mu.Lock()

	settled := make(chan struct{})
	returned := make(chan struct{})
	go func() {
		s.Speak(Utterance{Text: "xin chào"}, func() {
			mu.Lock()
			mu.Unlock()
			close(settled)
		})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Speak blocked while the caller held its lock")
	}

	mu.Unlock()
	select {
	case <-settled:
	case <-time.After(2 * time.Second):
		t.Fatal("dropped utterance never settled its callback")
	}
}
