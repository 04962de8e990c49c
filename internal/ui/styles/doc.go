// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the vichat terminal UI.

This package defines the color palette, theme, and animation configuration
used throughout the application. All colors use Lip Gloss AdaptiveColor for
automatic light/dark terminal detection.

# Color System (colors.go)

Primary accents:

  - Purple - assistant messages and selections
  - Cyan - brand color, commands, user highlights
  - Emerald - ready replies and success states
  - Amber - pending replies and warnings
  - Rose - failed replies and errors

Message bubbles and UI elements use semantic color tokens
(UserBubbleBg, AssistantBubbleFg, PendingBubbleBorder, ...) plus the
hierarchical text colors TextPrimary, TextSecondary, TextMuted.

# Theme System (theme.go)

The Theme struct provides runtime color adaptation:

	theme := styles.NewTheme()
	if theme.IsDark {
		// Dark terminal detected
	}

# Animation System (animations.go)

Pre-defined spinner styles (LineSpinner, DotsSpinner, PulseSpinner) drive
the waiting indicator while a reply is in flight, and FormatElapsed
renders the waiting time next to it.
*/
package styles
