// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"

	"github.com/lamnguyen92/vichat-tui/internal/model"
	"github.com/lamnguyen92/vichat-tui/internal/storage"
)

// =============================================================================
// CONVERSION UTILITIES
// =============================================================================

// FromStored builds a transcript from persisted history rows, so past
// sessions can be exported without a live conversation in memory.
func FromStored(title, tool string, pairs []storage.StoredPair) *Transcript {
	snaps := make([]model.Snapshot, 0, len(pairs))
	for _, sp := range pairs {
		snaps = append(snaps, model.Snapshot{
			ID:        sp.ID,
			UserText:  sp.UserText,
			ReplyText: sp.ReplyText,
			State:     sp.State,
			CreatedAt: sp.CreatedAt,
			UpdatedAt: sp.UpdatedAt,
		})
	}
	return NewTranscript(title, tool, snaps)
}

// ExportTranscript exports a transcript in the named format. This is
// the convenience entry point used by the /export command.
func ExportTranscript(tr *Transcript, format string, opts *Options) (string, error) {
	if tr == nil {
		return "", fmt.Errorf("transcript is nil")
	}

	switch format {
	case "markdown", "md":
		return ExportMarkdown(tr, opts)
	case "html", "htm":
		return ExportHTML(tr, opts)
	case "json":
		return ExportToFile(tr, NewJSONExporter(opts), opts)
	default:
		return "", fmt.Errorf("unsupported export format: %s", format)
	}
}
