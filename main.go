// vichat - an asynchronous Vietnamese/English chat client for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/lamnguyen92/vichat-tui/internal/api"
	"github.com/lamnguyen92/vichat-tui/internal/cancel"
	"github.com/lamnguyen92/vichat-tui/internal/cli"
	"github.com/lamnguyen92/vichat-tui/internal/config"
	"github.com/lamnguyen92/vichat-tui/internal/engine"
	"github.com/lamnguyen92/vichat-tui/internal/lifecycle"
	"github.com/lamnguyen92/vichat-tui/internal/model"
	"github.com/lamnguyen92/vichat-tui/internal/poll"
	"github.com/lamnguyen92/vichat-tui/internal/speech"
	"github.com/lamnguyen92/vichat-tui/internal/storage"
	"github.com/lamnguyen92/vichat-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "config file path (default: the user config directory)")
		serverURL   = flag.String("server", "", "chat server base URL (overrides config)")
		tool        = flag.String("tool", "", "tool to attach to sends (overrides config)")
		replMode    = flag.Bool("repl", false, "use the line-oriented REPL instead of the full-screen UI")
		noHistory   = flag.Bool("no-history", false, "disable conversation persistence")
		exportFmt   = flag.String("export", "", "export persisted history (md, html, json) and exit")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("vichat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Server.BaseURL = *serverURL
	}
	if *tool != "" {
		cfg.DefaultTool = *tool
	}
	if *noHistory {
		cfg.History.Enabled = false
	}
	config.SetGlobal(cfg)

	if *exportFmt != "" {
		runExport(cfg, *exportFmt)
		return
	}

	store := openHistory(cfg)
	if store != nil {
		defer store.Close()
	}

	client := api.NewClient(cfg.Server.BaseURL)
	if cfg.Server.RequestTimeoutSecs > 0 {
		client = client.WithTimeout(time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second)
	}
	if cfg.Server.RateLimitPerSec > 0 {
		client = client.WithLimiter(rate.NewLimiter(
			rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateBurst))
	}

	registry := cancel.NewRegistry()
	bus := lifecycle.NewBus()

	// A typed nil *storage.Store must not reach the controller as a
	// non-nil interface.
	var historyStore lifecycle.HistoryStore
	if store != nil {
		historyStore = store
	}
	ctrl := lifecycle.NewController(registry, historyStore, bus)
	restoreHistory(ctrl, store)

	sched := poll.NewScheduler(client, registry, ctrl).WithBackoff(
		cfg.Poll.MaxAttempts,
		time.Duration(cfg.Poll.BaseDelayMs)*time.Millisecond,
		time.Duration(cfg.Poll.MaxDelayMs)*time.Millisecond,
		time.Duration(cfg.Poll.JitterMs)*time.Millisecond,
	)

	eng := engine.New(cfg, client, registry, ctrl, sched, speechManager(cfg))
	defer eng.StopAll()

	// Pick up edits to the on-disk config while running: the watcher
	// updates the global snapshot and the engine picks up upload
	// limits, send hints, and the default tool. Flag overrides do not
	// survive a reload, which is the expected trade.
	if watchPath := configWatchPath(*configPath); watchPath != "" {
		if w, err := config.NewWatcher(watchPath, eng.ApplyConfig); err == nil {
			if err := w.Watch(); err == nil {
				defer w.Close()
			}
		}
	}

	// Prime the session cookie and anti-forgery token so the first
	// send doesn't pay the handshake.
	go func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelFn()
		if err := client.WarmUp(ctx); err != nil {
			log.Printf("warmup failed, first request will handshake inline: %v", err)
		}
	}()

	if *replMode || !cli.IsStdinTTY() || !cli.IsStdoutTTY() {
		runREPL(eng, cfg)
		return
	}
	runTUI(eng)
}

// loadConfig loads from an explicit path or the default location.
// A missing default config is fine: defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// configWatchPath resolves the file the watcher should follow.
func configWatchPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	p, err := config.ConfigPathTOML()
	if err != nil {
		return ""
	}
	return p
}

// openHistory opens the SQLite store when persistence is enabled.
// Failure degrades to an in-memory session rather than refusing to
// start.
func openHistory(cfg *config.Config) *storage.Store {
	if !cfg.History.Enabled {
		return nil
	}
	path, err := cfg.HistoryPath()
	if err == nil {
		var store *storage.Store
		if store, err = storage.Open(path); err == nil {
			return store
		}
	}
	fmt.Fprintf(os.Stderr, "Warning: history disabled, could not open store: %v\n", err)
	return nil
}

// restoreHistory preloads persisted pairs into the conversation.
func restoreHistory(ctrl *lifecycle.Controller, store *storage.Store) {
	if store == nil {
		return
	}
	stored, err := store.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load history: %v\n", err)
		return
	}
	pairs := make([]*model.Pair, 0, len(stored))
	for _, sp := range stored {
		pairs = append(pairs, model.RestorePair(model.Snapshot{
			ID:        sp.ID,
			UserText:  sp.UserText,
			ReplyText: sp.ReplyText,
			State:     sp.State,
			CreatedAt: sp.CreatedAt,
			UpdatedAt: sp.UpdatedAt,
		}))
	}
	ctrl.Restore(pairs)
}

// speechManager builds the speech session manager, or nil when speech
// is disabled or no speech command is installed.
func speechManager(cfg *config.Config) *speech.Manager {
	if !cfg.Speech.Enabled {
		return nil
	}
	synth, err := speech.NewCommandSynthesizer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: speech disabled: %v\n", err)
		return nil
	}
	return speech.NewManager(synth).
		WithPreferredVoices(cfg.Speech.PreferredVoiceVI, cfg.Speech.PreferredVoiceEN)
}

// runExport dumps the persisted history to a file and exits.
func runExport(cfg *config.Config, format string) {
	store := openHistory(cfg)
	if store == nil {
		fmt.Fprintln(os.Stderr, "Error: history is disabled, nothing to export")
		os.Exit(1)
	}
	path, err := cli.ExportStored(store, cfg.DefaultTool, format, nil)
	store.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported to %s\n", path)
}

// runTUI starts the full-screen interface.
func runTUI(eng *engine.Engine) {
	p := tea.NewProgram(
		chat.New(eng),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running vichat: %v\n", err)
		os.Exit(1)
	}
}

// runREPL starts the line-oriented interface, used for plain terminals
// and piped IO.
func runREPL(eng *engine.Engine, cfg *config.Config) {
	if err := cli.NewREPL(eng, cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
