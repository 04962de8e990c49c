// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"strings"
	"testing"
)

func TestSplitClassifiesLanguages(t *testing.T) {
	segs := Split("Chào mọi người. Hello everyone today.")
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].Lang != LangVietnamese {
		t.Errorf("first segment should be vi, got %s", segs[0].Lang)
	}
	if segs[1].Lang != LangEnglish {
		t.Errorf("second segment should be en, got %s", segs[1].Lang)
	}
	if !strings.Contains(segs[0].Text, "chào") {
		t.Errorf("vi segment lost text: %q", segs[0].Text)
	}
}

func TestSplitMergesPunctuationIntoRun(t *testing.T) {
	segs := Split("hello , world ... goodbye")
	if len(segs) != 1 {
		t.Fatalf("punctuation must not break a run, got %d segments: %+v", len(segs), segs)
	}
	if segs[0].Lang != LangEnglish {
		t.Errorf("expected en, got %s", segs[0].Lang)
	}
}

func TestSplitLeadingPunctuationAttachesForward(t *testing.T) {
	segs := Split("... chào bạn")
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d: %+v", len(segs), segs)
	}
	if segs[0].Lang != LangVietnamese {
		t.Errorf("expected vi, got %s", segs[0].Lang)
	}
}

func TestSplitUnsupportedScript(t *testing.T) {
	segs := Split("こんにちは世界")
	if len(segs) != 1 || segs[0].Lang != LangUnsupported {
		t.Fatalf("expected one unsupported segment, got %+v", segs)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if segs := Split("   "); segs != nil {
		t.Errorf("expected nil for whitespace input, got %+v", segs)
	}
}

func TestSplitChunksLongRuns(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("this is a fairly ordinary sentence. ")
	}
	segs := Split(b.String())
	if len(segs) < 2 {
		t.Fatalf("long run should be chunked, got %d segments", len(segs))
	}
	for i, s := range segs {
		if n := len([]rune(s.Text)); n > maxChunkLen {
			t.Errorf("segment %d exceeds ceiling: %d runes", i, n)
		}
		if s.Lang != LangEnglish {
			t.Errorf("segment %d lost its language: %s", i, s.Lang)
		}
	}
}

func TestChunkSentencesPrefersBoundaries(t *testing.T) {
	chunks := chunkSentences("First one. Second one. Third one.", 25)
	for _, c := range chunks {
		if !strings.HasSuffix(c, ".") {
			t.Errorf("chunk should end at a sentence boundary: %q", c)
		}
	}
}

func TestChunkSentencesRunOnText(t *testing.T) {
	long := strings.Repeat("word ", 100)
	chunks := chunkSentences(strings.TrimSpace(long), 40)
	if len(chunks) < 2 {
		t.Fatal("run-on text should still be chunked")
	}
	for _, c := range chunks {
		if len([]rune(c)) > 40 {
			t.Errorf("chunk exceeds limit: %d runes", len([]rune(c)))
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Errorf("chunk has stray whitespace: %q", c)
		}
	}
}

func TestStripDiacritics(t *testing.T) {
	cases := map[string]string{
		"Xin chào":     "Xin chao",
		"tiếng Việt":   "tieng Viet",
		"Đà Nẵng":      "Da Nang",
		"đường phố":    "duong pho",
		"plain ascii":  "plain ascii",
	}
	for in, want := range cases {
		if got := StripDiacritics(in); got != want {
			t.Errorf("StripDiacritics(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSelectVoiceCascade(t *testing.T) {
	voices := []Voice{
		{Name: "Microsoft David", Lang: "en-US"},
		{Name: "Microsoft HoaiMy Online", Lang: "vi-VN"},
	}

	v, ok := SelectVoice(voices, LangVietnamese)
	if !ok || v.Lang != "vi-VN" {
		t.Errorf("exact tag match failed: %+v", v)
	}

	// No exact tag, fuzzy vendor name.
	fuzzy := []Voice{{Name: "HoaiMy Neural", Lang: "und"}}
	v, ok = SelectVoice(fuzzy, LangVietnamese)
	if !ok || v.Name != "HoaiMy Neural" {
		t.Errorf("vendor name match failed: %+v", v)
	}

	// Nothing fits.
	if _, ok := SelectVoice([]Voice{{Name: "Kyoko", Lang: "ja-JP"}}, LangVietnamese); ok {
		t.Error("expected no match for ja-only voice list")
	}

	if _, ok := SelectVoice(voices, LangUnsupported); ok {
		t.Error("unsupported language must never select a voice")
	}
}

func TestSelectVoiceNamedPrefersConfiguredName(t *testing.T) {
	voices := []Voice{
		{Name: "Linh", Lang: "vi-VN"},
		{Name: "HoaiMy", Lang: "vi-VN"},
	}

	// The configured name wins over the cascade's first exact-tag hit.
	v, ok := SelectVoiceNamed(voices, LangVietnamese, "hoaimy")
	if !ok || v.Name != "HoaiMy" {
		t.Errorf("configured voice not selected: %+v", v)
	}

	// Uninstalled or empty preference falls back to the cascade.
	v, ok = SelectVoiceNamed(voices, LangVietnamese, "NotInstalled")
	if !ok || v.Name != "Linh" {
		t.Errorf("fallback to cascade failed: %+v", v)
	}
	v, ok = SelectVoiceNamed(voices, LangVietnamese, "")
	if !ok || v.Name != "Linh" {
		t.Errorf("empty preference should use the cascade: %+v", v)
	}
}
