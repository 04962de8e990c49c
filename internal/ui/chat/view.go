// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lamnguyen92/vichat-tui/internal/model"
	"github.com/lamnguyen92/vichat-tui/internal/ui/styles"
	"github.com/lamnguyen92/vichat-tui/internal/util"
)

// View renders the whole chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Starting vichat..."
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	sb.WriteString("\n")
	if m.showHelp {
		sb.WriteString(m.renderFullHelp())
	} else {
		sb.WriteString(m.renderStatusBar())
	}
	return sb.String()
}

// renderHeader shows the application title and the selected tool.
func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("vichat")
	tool := m.engine.Tool()
	if tool != "" {
		title += m.theme.HeaderSubtitle.Render("  " + tool)
	}
	return m.theme.Header.Width(m.width - 2).Render(title)
}

// renderStatusBar shows a transient status message or the key hints.
func (m Model) renderStatusBar() string {
	var parts []string
	if m.speakingNow() {
		parts = append(parts, m.theme.SpeakingBadge.Render(styles.StatusIndicators.Speaking+" speaking"))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	} else {
		for _, b := range m.keyMap.ShortHelp() {
			h := b.Help()
			parts = append(parts,
				m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
		}
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

// renderFullHelp shows every binding, grouped.
func (m Model) renderFullHelp() string {
	var sb strings.Builder
	for _, group := range m.keyMap.FullHelp() {
		var line []string
		for _, b := range group {
			h := b.Help()
			line = append(line,
				m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
		}
		sb.WriteString(strings.Join(line, "  "))
		sb.WriteString("\n")
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.TrimRight(sb.String(), "\n"))
}

// refreshTranscript re-renders the conversation into the viewport.
func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	snaps := m.engine.Controller().Pairs()
	var sb strings.Builder
	for _, snap := range snaps {
		sb.WriteString(m.renderPair(snap))
		sb.WriteString("\n")
	}
	m.viewport.SetContent(sb.String())
}

// renderPair renders one exchange: the user bubble, then the reply
// bubble or its state marker.
func (m Model) renderPair(snap model.Snapshot) string {
	bubbleWidth := m.width - 10
	if bubbleWidth < 20 {
		bubbleWidth = 20
	}

	var sb strings.Builder

	user := m.theme.UserBubble.MaxWidth(bubbleWidth).Render(snap.UserText)
	sb.WriteString(lipgloss.PlaceHorizontal(m.width-2, lipgloss.Right, user))
	sb.WriteString("\n")
	if n := len(snap.Attachments); n > 0 {
		names := make([]string, 0, n)
		for _, a := range snap.Attachments {
			names = append(names, a.Name)
		}
		line := m.theme.ShortcutDesc.Render(
			util.TruncateWidth("attached: "+strings.Join(names, ", "), bubbleWidth))
		sb.WriteString(lipgloss.PlaceHorizontal(m.width-2, lipgloss.Right, line))
		sb.WriteString("\n")
	}

	sb.WriteString(m.renderReply(snap, bubbleWidth))
	sb.WriteString("\n")
	return sb.String()
}

// renderReply renders the AI turn for one pair.
func (m Model) renderReply(snap model.Snapshot, bubbleWidth int) string {
	switch snap.State {
	case model.ReplyQueued, model.ReplyPending:
		waiting := fmt.Sprintf("%s waiting for reply %s",
			m.spinner.View(), styles.FormatElapsed(time.Since(snap.UpdatedAt)))
		return m.theme.PendingBubble.MaxWidth(bubbleWidth).Render(waiting)

	case model.ReplyReady:
		body := m.renderMarkdown(snap.ReplyText)
		if snap.VersionTotal > 1 {
			body += "\n" + m.theme.VersionLabel.Render(
				fmt.Sprintf("version %d/%d", snap.VersionCurrent, snap.VersionTotal))
		}
		return m.theme.AssistantBubble.MaxWidth(bubbleWidth).Render(body)

	case model.ReplyCanceled:
		return m.theme.StateCanceled.Render("[canceled]")

	case model.ReplyTimeout:
		return m.theme.StateTimeout.Render("[timed out waiting for a reply]")

	case model.ReplyFailed:
		text := snap.ReplyText
		if text == "" {
			text = "Something went wrong. Please try again."
		}
		return m.theme.FailedBubble.MaxWidth(bubbleWidth).Render(text)
	}
	return ""
}

// renderMarkdown renders reply Markdown for terminal display, falling
// back to the raw text when the renderer is unavailable.
func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}
