// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/lamnguyen92/vichat-tui/internal/config"
	"github.com/lamnguyen92/vichat-tui/internal/engine"
	"github.com/lamnguyen92/vichat-tui/internal/export"
	"github.com/lamnguyen92/vichat-tui/internal/lifecycle"
	"github.com/lamnguyen92/vichat-tui/internal/model"
	"github.com/lamnguyen92/vichat-tui/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// InputCLI provides input history and line editing for the REPL.
type InputCLI struct {
	line        *liner.State
	historyFile string
}

// NewInputCLI creates a liner-backed reader with persistent history.
func NewInputCLI() *InputCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &InputCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "repl_history"),
	}
	c.loadHistory()
	return c
}

func (c *InputCLI) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads one line with history navigation.
func (c *InputCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and releases the terminal.
func (c *InputCLI) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// replyWaitSlack is added on top of the engine's own poll ceiling so
// the REPL wait never outlives it silently.
const replyWaitSlack = 30 * time.Second

// REPL drives the engine from a line-oriented prompt.
type REPL struct {
	eng    *engine.Engine
	cfg    *config.Config
	input  *InputCLI
	events <-chan lifecycle.Event
}

// NewREPL binds a REPL to an engine. Subscribe happens here, before any
// message is sent, so no event is missed.
func NewREPL(eng *engine.Engine, cfg *config.Config) *REPL {
	return &REPL{
		eng:    eng,
		cfg:    cfg,
		input:  NewInputCLI(),
		events: eng.Controller().Bus().Subscribe(),
	}
}

// Run executes the read-send-wait loop until /quit or EOF.
func (r *REPL) Run() error {
	defer r.input.Close()
	defer r.eng.StopAll()

	r.printWelcome()

	// Ctrl+C during a reply wait cancels the pending replies. During
	// the prompt itself liner reports ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			r.eng.StopAll()
		}
	}()

	for {
		input, err := r.input.ReadInput(promptStyle.Render("vichat> "))
		if err != nil {
			if err == liner.ErrPromptAborted {
				// Ctrl+C at the prompt clears the line, nothing else.
				continue
			}
			// EOF (Ctrl+D) or a read error: exit gracefully.
			fmt.Println()
			fmt.Println(infoStyle.Render("Goodbye!"))
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			cont, err := r.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !cont {
				fmt.Println(infoStyle.Render("Goodbye!"))
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			fmt.Println(infoStyle.Render("Goodbye!"))
			return nil
		}

		pair, err := r.eng.Send(input, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			continue
		}
		r.waitAndPrint(pair.ID())
	}
}

// waitAndPrint blocks until the pair with the given id reaches a
// terminal state, following reconciliation renames along the way.
func (r *REPL) waitAndPrint(id string) {
	deadline := time.NewTimer(r.pollBudget() + replyWaitSlack)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			switch ev.Type {
			case lifecycle.EventReconciled:
				if ev.OldID == id {
					id = ev.ID
				}
			case lifecycle.EventStateChanged:
				if ev.ID != id || !ev.State.Terminal() {
					continue
				}
				r.printReply(id)
				return
			}
		case <-deadline.C:
			fmt.Fprintln(os.Stderr, warningStyle.Render("[No reply arrived; it may still land later]"))
			return
		}
	}
}

// pollBudget approximates the engine's worst-case polling duration from
// the configured backoff parameters.
func (r *REPL) pollBudget() time.Duration {
	p := r.cfg.Poll
	total := time.Duration(p.MaxAttempts) * time.Duration(p.MaxDelayMs+p.JitterMs) * time.Millisecond
	if total <= 0 {
		total = 15 * time.Minute
	}
	return total
}

// printReply renders the pair's terminal state.
func (r *REPL) printReply(id string) {
	pair := r.eng.Controller().Get(id)
	if pair == nil {
		return
	}
	fmt.Println()
	switch pair.State() {
	case model.ReplyReady:
		displayReply(pair.ReplyText())
	case model.ReplyCanceled:
		fmt.Println(markerStyle.Render("[canceled]"))
	case model.ReplyTimeout:
		fmt.Println(markerStyle.Render("[timed out waiting for a reply]"))
	case model.ReplyFailed:
		fmt.Println(errorStyle.Render("[failed]") + " " + pair.ReplyText())
	}
	fmt.Println()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// parseCommand splits a slash command into its name and argument rest.
// The rest keeps internal spacing so /edit can carry full sentences.
func parseCommand(input string) (cmd, rest string) {
	input = strings.TrimSpace(input)
	if i := strings.IndexAny(input, " \t"); i >= 0 {
		return strings.ToLower(input[:i]), strings.TrimSpace(input[i+1:])
	}
	return strings.ToLower(input), ""
}

// handleSlashCommand processes one slash command.
// Returns (continue, error); continue=false means exit the REPL.
func (r *REPL) handleSlashCommand(input string) (bool, error) {
	cmd, rest := parseCommand(input)

	switch cmd {
	case "/help", "/h", "/?", "/":
		r.printHelp()
		return true, nil

	case "/edit", "/e":
		if rest == "" {
			return true, fmt.Errorf("usage: /edit <new text>")
		}
		id, ok := r.lastServerPair()
		if !ok {
			return true, fmt.Errorf("no message to edit yet")
		}
		if err := r.eng.Edit(id, rest); err != nil {
			return true, err
		}
		r.waitAndPrint(id)
		return true, nil

	case "/regen", "/r":
		id, ok := r.lastServerPair()
		if !ok {
			return true, fmt.Errorf("no reply to regenerate yet")
		}
		if err := r.eng.Regenerate(id); err != nil {
			return true, err
		}
		r.waitAndPrint(id)
		return true, nil

	case "/stop":
		r.eng.StopAll()
		fmt.Println(commandStyle.Render("[Stopped all pending replies]"))
		return true, nil

	case "/speak", "/s":
		id, ok := r.lastPairInState(model.ReplyReady)
		if !ok {
			return true, fmt.Errorf("no ready reply to read aloud")
		}
		return true, r.eng.ToggleSpeech(id)

	case "/export", "/x":
		return true, r.exportTranscript(rest)

	case "/models":
		return true, r.printModels()

	case "/tool":
		if rest == "" {
			fmt.Printf("%s %s\n", infoStyle.Render("[Tool]"), commandStyle.Render(r.eng.Tool()))
			return true, nil
		}
		r.eng.SetTool(rest)
		fmt.Printf("%s Switched to tool: %s\n", commandStyle.Render("[OK]"), rest)
		return true, nil

	case "/history":
		r.printHistory()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", cmd)
	}
}

// lastServerPair returns the newest pair that already has a server id.
func (r *REPL) lastServerPair() (string, bool) {
	snaps := r.eng.Controller().Pairs()
	for i := len(snaps) - 1; i >= 0; i-- {
		if !snaps[i].Provisional {
			return snaps[i].ID, true
		}
	}
	return "", false
}

// lastPairInState returns the newest pair in the given state.
func (r *REPL) lastPairInState(state model.ReplyState) (string, bool) {
	snaps := r.eng.Controller().Pairs()
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].State == state {
			return snaps[i].ID, true
		}
	}
	return "", false
}

// exportTranscript writes the conversation to a file in the requested
// format (default Markdown).
func (r *REPL) exportTranscript(format string) error {
	if format == "" {
		format = "md"
	}
	snaps := r.eng.Controller().Pairs()
	if len(snaps) == 0 {
		return fmt.Errorf("nothing to export yet")
	}
	tr := export.NewTranscript("", r.eng.Tool(), snaps)
	path, err := export.ExportTranscript(tr, format, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%s Exported to %s\n", commandStyle.Render("[OK]"), path)
	return nil
}

// printModels fetches and lists the server's tool catalog.
func (r *REPL) printModels() error {
	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()

	models, err := r.eng.Models(ctx)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(welcomeStyle.Render("Available tools"))
	for _, m := range models {
		label := m.ID
		if m.ID == r.eng.Tool() {
			label = commandStyle.Render(m.ID + " (selected)")
		}
		if m.Name != "" && m.Name != m.ID {
			label += "  " + infoStyle.Render(m.Name)
		}
		if !m.Available {
			label += " " + warningStyle.Render("(unavailable)")
		}
		fmt.Printf("  %s\n", label)
	}
	fmt.Println()
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (r *REPL) printWelcome() {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("vichat"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n", infoStyle.Render("Server:"), r.cfg.Server.BaseURL)
	if tool := r.eng.Tool(); tool != "" {
		fmt.Printf("%s %s\n", infoStyle.Render("Tool:"), commandStyle.Render(tool))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func (r *REPL) printHelp() {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/edit <text>", "Edit the last message and resend"},
		{"/regen", "Regenerate the last reply"},
		{"/stop", "Cancel every pending reply"},
		{"/speak", "Read the last reply aloud (toggle)"},
		{"/export [fmt]", "Export transcript (md, html, json)"},
		{"/models", "List available tools"},
		{"/tool [name]", "Show or switch tool"},
		{"/history", "Show conversation history"},
		{"/quit, /q", "Exit"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels pending replies, Ctrl+D exits"))
	fmt.Println()
}

func (r *REPL) printHistory() {
	snaps := r.eng.Controller().Pairs()
	if len(snaps) == 0 {
		fmt.Println(infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(welcomeStyle.Render("Conversation History"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 25)))
	fmt.Println()

	for i, snap := range snaps {
		fmt.Printf("  %d. %s: %s\n", i+1,
			promptStyle.Render("You"), previewLine(snap.UserText))
		switch snap.State {
		case model.ReplyReady:
			fmt.Printf("     %s: %s\n", welcomeStyle.Render("AI"), previewLine(snap.ReplyText))
		default:
			fmt.Printf("     %s: %s\n", welcomeStyle.Render("AI"),
				markerStyle.Render("["+string(snap.State)+"]"))
		}
	}
	fmt.Println()
}

// previewLine flattens and truncates text for one-line history display.
func previewLine(s string) string {
	return util.TruncateRunes(strings.ReplaceAll(s, "\n", " "), 100)
}
