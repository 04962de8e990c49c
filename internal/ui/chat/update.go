// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/lamnguyen92/vichat-tui/internal/model"
)

// Update handles all Bubble Tea messages for the chat view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refreshTranscript()

	case conversationEventMsg:
		m.refreshTranscript()
		m.viewport.GotoBottom()
		cmds = append(cmds, waitForEvent(m.events))

	case statusMsg:
		m.status = string(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.anyPending() {
			m.refreshTranscript()
		}
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		handled, cmd := m.handleKey(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		if handled {
			break
		}
		var taCmd tea.Cmd
		m.input, taCmd = m.input.Update(msg)
		cmds = append(cmds, taCmd)

	default:
		var taCmd tea.Cmd
		m.input, taCmd = m.input.Update(msg)
		cmds = append(cmds, taCmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(m.passthroughForViewport(msg))
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

// passthroughForViewport filters key messages so typing in the textarea
// does not also scroll the transcript. Only navigation keys reach the
// viewport.
func (m Model) passthroughForViewport(msg tea.Msg) tea.Msg {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return msg
	}
	if key.Matches(keyMsg, m.keyMap.Up) || key.Matches(keyMsg, m.keyMap.Down) ||
		key.Matches(keyMsg, m.keyMap.PageUp) || key.Matches(keyMsg, m.keyMap.PageDown) {
		return msg
	}
	return nil
}

// handleKey processes global shortcuts. Returns true when the key was
// consumed and must not reach the textarea.
func (m *Model) handleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.engine.StopAll()
		return true, tea.Quit

	case key.Matches(msg, m.keyMap.Stop):
		m.engine.StopAll()
		m.status = "Stopped all pending replies."
		m.refreshTranscript()
		return true, nil

	case key.Matches(msg, m.keyMap.Submit):
		return true, m.submitInput()

	case key.Matches(msg, m.keyMap.Speak):
		m.toggleSpeech()
		return true, nil

	case key.Matches(msg, m.keyMap.Regenerate):
		m.regenerateLast()
		return true, nil

	case key.Matches(msg, m.keyMap.PrevVersion):
		m.shiftVersion(-1)
		return true, nil

	case key.Matches(msg, m.keyMap.NextVersion):
		m.shiftVersion(+1)
		return true, nil

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return true, nil
	}
	return false, nil
}

// submitInput sends the composed text through the engine.
func (m *Model) submitInput() tea.Cmd {
	text := m.input.Value()
	if _, err := m.engine.Send(text, nil); err != nil {
		m.status = err.Error()
		return nil
	}
	m.input.Reset()
	m.status = ""
	m.refreshTranscript()
	m.viewport.GotoBottom()
	return nil
}

// toggleSpeech reads the newest ready reply aloud, or pauses/resumes
// the current one.
func (m *Model) toggleSpeech() {
	id, ok := m.lastPairInState(model.ReplyReady)
	if !ok {
		m.status = "No reply to read aloud."
		return
	}
	if err := m.engine.ToggleSpeech(id); err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
}

// regenerateLast requests a new reply for the newest non-provisional pair.
func (m *Model) regenerateLast() {
	snaps := m.engine.Controller().Pairs()
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].Provisional {
			continue
		}
		if err := m.engine.Regenerate(snaps[i].ID); err != nil {
			m.status = err.Error()
		} else {
			m.status = "Regenerating..."
			m.refreshTranscript()
		}
		return
	}
	m.status = "Nothing to regenerate yet."
}

// shiftVersion moves the newest pair's displayed version counter.
// Display-only: no fetch is issued.
func (m *Model) shiftVersion(dir int) {
	snaps := m.engine.Controller().Pairs()
	if len(snaps) == 0 {
		return
	}
	pair := m.engine.Controller().Get(snaps[len(snaps)-1].ID)
	if pair == nil {
		return
	}
	var moved bool
	if dir < 0 {
		moved = pair.PrevVersion()
	} else {
		moved = pair.NextVersion()
	}
	if moved {
		cur, total := pair.Version()
		m.status = fmt.Sprintf("Showing version %d/%d", cur, total)
		m.refreshTranscript()
	}
}

// lastPairInState returns the id of the newest pair in the given state.
func (m Model) lastPairInState(state model.ReplyState) (string, bool) {
	snaps := m.engine.Controller().Pairs()
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].State == state {
			return snaps[i].ID, true
		}
	}
	return "", false
}

// anyPending reports whether any reply is still in flight.
func (m Model) anyPending() bool {
	for _, s := range m.engine.Controller().Pairs() {
		if s.State == model.ReplyQueued || s.State == model.ReplyPending {
			return true
		}
	}
	return false
}

// resize lays out the viewport and input for new dimensions.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)

	inputHeight := m.input.Height() + 2
	headerHeight := 3
	statusHeight := 1
	vpHeight := height - inputHeight - headerHeight - statusHeight
	if vpHeight < 3 {
		vpHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(width - 2)

	// Rebuild the Markdown renderer at the new wrap width.
	wrap := width - 8
	if wrap < 20 {
		wrap = 20
	}
	if r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	); err == nil {
		m.renderer = r
	}
}
