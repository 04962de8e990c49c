// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversation transcripts to shareable files.
//
// A Transcript is an ordered list of message-pair snapshots. Exporters
// render it to Markdown, self-contained HTML (with syntax-highlighted
// code blocks), or JSON. Replies that never arrived keep their state
// marker in the output instead of silently disappearing.
//
// # Usage
//
// Export the current conversation to Markdown:
//
//	tr := export.NewTranscript("", cfg.Server.Tool, ctrl.Snapshots())
//	path, err := export.ExportMarkdown(tr, nil)
//
// Or dispatch on a user-supplied format name:
//
//	path, err := export.ExportTranscript(tr, "html", opts)
package export
