// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lamnguyen92/vichat-tui/internal/config"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantCmd  string
		wantRest string
	}{
		{"/help", "/help", ""},
		{"/HELP", "/help", ""},
		{"/edit new text here", "/edit", "new text here"},
		{"/edit   spaced   out  ", "/edit", "spaced   out"},
		{"/tool\ttranslate", "/tool", "translate"},
		{"  /quit  ", "/quit", ""},
		{"/export html", "/export", "html"},
	}

	for _, tt := range tests {
		cmd, rest := parseCommand(tt.input)
		if cmd != tt.wantCmd || rest != tt.wantRest {
			t.Errorf("parseCommand(%q) = (%q, %q), want (%q, %q)",
				tt.input, cmd, rest, tt.wantCmd, tt.wantRest)
		}
	}
}

func TestParseCommandPreservesInnerSpacing(t *testing.T) {
	_, rest := parseCommand("/edit hai  khoảng  trắng")
	require.Equal(t, "hai  khoảng  trắng", rest)
}

func TestPreviewLineFlattensNewlines(t *testing.T) {
	got := previewLine("line one\nline two")
	if strings.Contains(got, "\n") {
		t.Errorf("preview still contains newline: %q", got)
	}
}

func TestPreviewLineTruncatesByRunes(t *testing.T) {
	long := strings.Repeat("ơ", 150)
	got := previewLine(long)
	require.True(t, strings.HasSuffix(got, "..."))
	require.Equal(t, 100, len([]rune(got)))
}

func TestPreviewLineShortUnchanged(t *testing.T) {
	require.Equal(t, "xin chào", previewLine("xin chào"))
}

func TestPollBudgetFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Poll.MaxAttempts = 10
	cfg.Poll.MaxDelayMs = 1000
	cfg.Poll.JitterMs = 500

	r := &REPL{cfg: cfg}
	require.Equal(t, 15*time.Second, r.pollBudget())
}

func TestPollBudgetFallbackWhenUnset(t *testing.T) {
	r := &REPL{cfg: &config.Config{}}
	if r.pollBudget() <= 0 {
		t.Fatal("budget must be positive even with a zeroed config")
	}
}
