// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"golang.org/x/term"
)

// IsStdoutTTY returns true if stdout is a terminal. Markdown rendering
// and color output are disabled for piped output.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsStdinTTY returns true if stdin is a terminal. The full TUI only
// makes sense on an interactive stdin.
func IsStdinTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
