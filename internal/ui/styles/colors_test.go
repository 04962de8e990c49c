// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// COLOR DEFINITION TESTS
// =============================================================================

func TestAdaptiveColorsHaveBothVariants(t *testing.T) {
	colors := []struct {
		name  string
		color lipgloss.AdaptiveColor
	}{
		{"Purple", Purple},
		{"Cyan", Cyan},
		{"Emerald", Emerald},
		{"Rose", Rose},
		{"Amber", Amber},
		{"Surface", Surface},
		{"TextPrimary", TextPrimary},
		{"TextMuted", TextMuted},
		{"UserBubbleBg", UserBubbleBg},
		{"AssistantBubbleBg", AssistantBubbleBg},
		{"PendingBubbleBorder", PendingBubbleBorder},
	}

	for _, c := range colors {
		if c.color.Light == "" {
			t.Errorf("%s missing Light variant", c.name)
		}
		if c.color.Dark == "" {
			t.Errorf("%s missing Dark variant", c.name)
		}
		if !strings.HasPrefix(c.color.Light, "#") {
			t.Errorf("%s Light %q is not a hex color", c.name, c.color.Light)
		}
		if !strings.HasPrefix(c.color.Dark, "#") {
			t.Errorf("%s Dark %q is not a hex color", c.name, c.color.Dark)
		}
	}
}

// =============================================================================
// STATUS INDICATOR TESTS
// =============================================================================

func TestStatusIndicatorsAreASCII(t *testing.T) {
	indicators := []string{
		StatusIndicators.Success,
		StatusIndicators.Error,
		StatusIndicators.Warning,
		StatusIndicators.Info,
		StatusIndicators.Pending,
		StatusIndicators.Speaking,
	}

	for _, ind := range indicators {
		if ind == "" {
			t.Error("status indicator is empty")
		}
		for _, r := range ind {
			if r > 127 {
				t.Errorf("indicator %q contains non-ASCII rune %q", ind, r)
			}
		}
	}
}

// =============================================================================
// RENDER HELPER TESTS
// =============================================================================

func TestRenderHelpersIncludeIndicator(t *testing.T) {
	cases := []struct {
		name      string
		render    func(string) string
		indicator string
	}{
		{"RenderSuccess", RenderSuccess, StatusIndicators.Success},
		{"RenderError", RenderError, StatusIndicators.Error},
		{"RenderWarning", RenderWarning, StatusIndicators.Warning},
		{"RenderInfo", RenderInfo, StatusIndicators.Info},
	}

	for _, tc := range cases {
		out := tc.render("message text")
		if !strings.Contains(out, tc.indicator) {
			t.Errorf("%s output %q missing indicator %q", tc.name, out, tc.indicator)
		}
		if !strings.Contains(out, "message text") {
			t.Errorf("%s output dropped the message", tc.name)
		}
	}
}
