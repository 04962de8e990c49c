// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/lamnguyen92/vichat-tui/internal/export"
	"github.com/lamnguyen92/vichat-tui/internal/storage"
)

// HistoryLoader supplies persisted conversation rows. *storage.Store
// satisfies this.
type HistoryLoader interface {
	Load() ([]storage.StoredPair, error)
}

// ExportStored writes the persisted history to a file in the requested
// format and returns the path. Used by the -export flag, which dumps
// past sessions without starting an interface.
func ExportStored(h HistoryLoader, tool, format string, opts *export.Options) (string, error) {
	if format == "" {
		format = "md"
	}
	stored, err := h.Load()
	if err != nil {
		return "", err
	}
	if len(stored) == 0 {
		return "", fmt.Errorf("history is empty, nothing to export")
	}
	tr := export.FromStored("", tool, stored)
	return export.ExportTranscript(tr, format, opts)
}
