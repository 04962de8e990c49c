// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import "strings"

// Voice identifies an installed synthesizer voice.
type Voice struct {
	Name string
	Lang string // BCP-47 tag, e.g. "vi-VN", "en-US"
}

// Known vendor voice names, checked when no voice advertises an exact
// language tag. Matching is case-insensitive on substrings.
var vendorNames = map[Lang][]string{
	LangVietnamese: {"hoaimy", "namminh", "linh", "tiếng việt", "vietnam"},
	LangEnglish:    {"zira", "david", "samantha", "aria", "us english"},
}

var langPrefix = map[Lang]string{
	LangVietnamese: "vi",
	LangEnglish:    "en",
}

// SelectVoiceNamed picks the installed voice whose name matches
// preferred, case-insensitively. An empty or uninstalled preferred name
// falls through to the SelectVoice cascade.
func SelectVoiceNamed(voices []Voice, lang Lang, preferred string) (Voice, bool) {
	if preferred != "" {
		for _, v := range voices {
			if strings.EqualFold(v.Name, preferred) {
				return v, true
			}
		}
	}
	return SelectVoice(voices, lang)
}

// SelectVoice picks the best available voice for a language: exact tag
// match first, then known vendor names, then any voice in the language
// family. Returns false when nothing fits.
func SelectVoice(voices []Voice, lang Lang) (Voice, bool) {
	prefix, ok := langPrefix[lang]
	if !ok {
		return Voice{}, false
	}

	exact := prefix + "-"
	for _, v := range voices {
		tag := strings.ToLower(v.Lang)
		if tag == prefix || strings.HasPrefix(tag, exact) {
			return v, true
		}
	}

	for _, name := range vendorNames[lang] {
		for _, v := range voices {
			if strings.Contains(strings.ToLower(v.Name), name) {
				return v, true
			}
		}
	}

	// Family match on the primary subtag alone.
	for _, v := range voices {
		if strings.HasPrefix(strings.ToLower(v.Lang), prefix) {
			return v, true
		}
	}
	return Voice{}, false
}
