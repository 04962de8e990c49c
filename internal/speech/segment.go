// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ===== LANGUAGE DETECTION =====

// Lang classifies a run of text for voice selection.
type Lang string

const (
	LangVietnamese  Lang = "vi"
	LangEnglish     Lang = "en"
	LangUnsupported Lang = "unsupported"
)

// Segment is a maximal run of text in one detected language.
type Segment struct {
	Lang Lang
	Text string
}

// maxChunkLen caps utterance length. Longer runs are split at sentence
// boundaries so backends with payload limits do not truncate mid-word.
const maxChunkLen = 200

// Vietnamese letters outside plain ASCII. Any of these marks a word as
// Vietnamese regardless of what else it contains.
const vietnameseLetters = "ăâêôơưđĂÂÊÔƠƯĐ" +
	"áàảãạấầẩẫậắằẳẵặéèẻẽẹếềểễệíìỉĩịóòỏõọốồổỗộớờởỡợúùủũụứừửữựýỳỷỹỵ" +
	"ÁÀẢÃẠẤẦẨẪẬẮẰẲẴẶÉÈẺẼẸẾỀỂỄỆÍÌỈĨỊÓÒỎÕỌỐỒỔỖỘỚỜỞỠỢÚÙỦŨỤỨỪỬỮỰÝỲỶỸỴ"

func classifyWord(word string) Lang {
	hasASCII := false
	for _, r := range word {
		if strings.ContainsRune(vietnameseLetters, r) {
			return LangVietnamese
		}
		if r < 128 && unicode.IsLetter(r) {
			hasASCII = true
			continue
		}
		if unicode.IsLetter(r) {
			// Letter from another script.
			return LangUnsupported
		}
	}
	if hasASCII {
		return LangEnglish
	}
	// Digits, punctuation, symbols only. Caller merges these into the
	// surrounding run.
	return ""
}

// Split breaks text into language-classified segments. Adjacent words
// of the same language coalesce, and punctuation or whitespace-only
// words attach to the run in progress instead of starting a new one.
// Runs longer than maxChunkLen are chunked at sentence boundaries.
func Split(text string) []Segment {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var segs []Segment
	cur := Segment{}
	for _, w := range words {
		lang := classifyWord(w)
		if lang == "" {
			lang = cur.Lang // neutral word follows the current run
		}
		if cur.Lang == "" {
			cur.Lang = lang
		}
		if lang != "" && lang != cur.Lang {
			segs = append(segs, cur)
			cur = Segment{Lang: lang}
		}
		if cur.Text != "" {
			cur.Text += " "
		}
		cur.Text += w
	}
	if cur.Text != "" {
		if cur.Lang == "" {
			// Nothing but punctuation in the whole input.
			cur.Lang = LangUnsupported
		}
		segs = append(segs, cur)
	}

	var out []Segment
	for _, s := range segs {
		for _, chunk := range chunkSentences(s.Text, maxChunkLen) {
			out = append(out, Segment{Lang: s.Lang, Text: chunk})
		}
	}
	return out
}

// chunkSentences splits text into pieces of at most limit runes,
// preferring sentence-ending punctuation as cut points and falling back
// to word boundaries for run-on text.
func chunkSentences(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	var buf []rune
	var cur string
	flush := func() {
		if s := strings.TrimSpace(cur); s != "" {
			chunks = append(chunks, s)
		}
		cur = ""
	}

	for _, sentence := range splitSentences(text) {
		if len([]rune(cur))+len([]rune(sentence)) > limit && cur != "" {
			flush()
		}
		if len([]rune(sentence)) > limit {
			// Single oversized sentence: cut at word boundaries.
			for _, w := range strings.Fields(sentence) {
				if len(buf)+len([]rune(w))+1 > limit && len(buf) > 0 {
					chunks = append(chunks, string(buf))
					buf = buf[:0]
				}
				if len(buf) > 0 {
					buf = append(buf, ' ')
				}
				buf = append(buf, []rune(w)...)
			}
			if len(buf) > 0 {
				chunks = append(chunks, string(buf))
				buf = buf[:0]
			}
			continue
		}
		if cur != "" {
			cur += " "
		}
		cur += sentence
	}
	flush()
	return chunks
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			if s := strings.TrimSpace(string(runes[start:end])); s != "" {
				out = append(out, s)
			}
			start = end
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// ===== DIACRITIC STRIPPING =====

var stripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripDiacritics converts Vietnamese text to its plain-ASCII skeleton
// so an English voice can approximate it when no Vietnamese voice is
// installed.
func StripDiacritics(s string) string {
	out, _, err := transform.String(stripper, s)
	if err != nil {
		return s
	}
	// NFD decomposition does not touch đ.
	out = strings.NewReplacer("đ", "d", "Đ", "D").Replace(out)
	return out
}
