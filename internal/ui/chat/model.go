// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/lamnguyen92/vichat-tui/internal/engine"
	"github.com/lamnguyen92/vichat-tui/internal/lifecycle"
	"github.com/lamnguyen92/vichat-tui/internal/speech"
	"github.com/lamnguyen92/vichat-tui/internal/ui/styles"
)

// =============================================================================
// MESSAGES
// =============================================================================

// conversationEventMsg wraps an engine event for the Bubble Tea loop.
type conversationEventMsg struct {
	event lifecycle.Event
}

// statusMsg sets a transient status-bar message.
type statusMsg string

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// Engine and event feed
	engine *engine.Engine
	events <-chan lifecycle.Event

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int
	ready  bool

	// UI components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	// Markdown rendering for ready replies
	renderer *glamour.TermRenderer

	// Key bindings
	keyMap KeyMap

	// Status line
	status   string
	showHelp bool
}

// New creates the chat view bound to an engine. The engine's event bus
// must still accept subscribers (i.e. call before the program starts).
func New(eng *engine.Engine) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: styles.PulseSpinner.Frames,
		FPS:    styles.PulseSpinner.Duration(),
	}

	ta := textarea.New()
	ta.Placeholder = "Nhắn tin... (Enter to send, Ctrl+J for newline)"
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()
	// Enter submits; newline moves to Ctrl+J.
	ta.KeyMap.InsertNewline.SetKeys("ctrl+j")

	theme := styles.NewTheme()
	sp.Style = theme.Spinner

	return Model{
		engine:  eng,
		events:  eng.Controller().Bus().Subscribe(),
		theme:   theme,
		input:   ta,
		spinner: sp,
		keyMap:  DefaultKeyMap(),
	}
}

// Init starts the spinner and the event-bus bridge.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		waitForEvent(m.events),
	)
}

// waitForEvent blocks on the bus channel and resurfaces the event as a
// Bubble Tea message. Re-issued after every received event.
func waitForEvent(ch <-chan lifecycle.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return conversationEventMsg{event: ev}
	}
}

// speakingNow reports whether a speech session is currently playing,
// for the status bar badge.
func (m Model) speakingNow() bool {
	return m.engine.SpeechState() == speech.StatePlaying
}
