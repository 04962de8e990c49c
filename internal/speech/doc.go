// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package speech segments reply text by detected language and drives a
// single mutually-exclusive playback session over a pluggable
// synthesizer backend.
//
// Text is split into Vietnamese, English, and unsupported runs using
// lightweight heuristics; each supported run becomes one or more
// utterances bound to a voice picked by a best-effort cascade. At most
// one session exists at a time, keyed by the message it reads from.
package speech
