// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/lamnguyen92/vichat-tui/internal/api"
	"github.com/lamnguyen92/vichat-tui/internal/cancel"
	"github.com/lamnguyen92/vichat-tui/internal/config"
	"github.com/lamnguyen92/vichat-tui/internal/lifecycle"
	"github.com/lamnguyen92/vichat-tui/internal/model"
	"github.com/lamnguyen92/vichat-tui/internal/poll"
	"github.com/lamnguyen92/vichat-tui/internal/speech"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyMessage indicates a send with no text and no files. The
	// UI should nudge rather than render an error bubble.
	ErrEmptyMessage = errors.New("engine: empty message")

	// ErrUnknownMessage indicates an operation on a message id the
	// conversation does not contain.
	ErrUnknownMessage = errors.New("engine: unknown message id")

	// ErrNotReady indicates speech was requested for a reply that has
	// not arrived yet.
	ErrNotReady = errors.New("engine: reply not ready")
)

// Failure messages shown in place of a reply. Parsed from the server's
// structured error code when present, generic otherwise.
const (
	msgSizeLimit   = "The attachment exceeds the size limit."
	msgAuthExpired = "Your session expired. Please sign in again."
	msgToolMissing = "The selected tool is not available right now."
	msgEmpty       = "The message was empty."
	msgNetwork     = "Could not reach the server. Check your connection."
	msgGeneric     = "Something went wrong. Please try again."
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns one conversation's full pipeline.
type Engine struct {
	client   *api.Client
	registry *cancel.Registry
	ctrl     *lifecycle.Controller
	sched    *poll.Scheduler
	speech   *speech.Manager

	mu     sync.Mutex
	cfg    *config.Config
	tool   string
	models []api.ModelInfo
}

// New wires an engine from its parts. speechMgr may be nil when speech
// is disabled.
func New(cfg *config.Config, client *api.Client, registry *cancel.Registry,
	ctrl *lifecycle.Controller, sched *poll.Scheduler, speechMgr *speech.Manager) *Engine {
	return &Engine{
		cfg:      cfg,
		client:   client,
		registry: registry,
		ctrl:     ctrl,
		sched:    sched,
		speech:   speechMgr,
		tool:     cfg.DefaultTool,
	}
}

// Controller exposes the lifecycle controller for rendering.
func (e *Engine) Controller() *lifecycle.Controller {
	return e.ctrl
}

// ApplyConfig swaps in a fresh configuration, typically after the
// on-disk config file changed. Upload limits and send hints take
// effect on the next send. The selected tool follows the new default
// when it has not diverged from the old one.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.DefaultTool != "" && e.tool == e.cfg.DefaultTool {
		e.tool = cfg.DefaultTool
	}
	e.cfg = cfg
}

// currentConfig returns the live configuration snapshot.
func (e *Engine) currentConfig() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Tool returns the currently selected tool.
func (e *Engine) Tool() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tool
}

// SetTool selects the tool attached to subsequent sends.
func (e *Engine) SetTool(tool string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tool = tool
}

// =============================================================================
// SEND PIPELINE
// =============================================================================

// Send creates a message pair, renders it immediately, and submits it
// in the background. The returned pair carries a provisional id until
// the server assigns one.
func (e *Engine) Send(text string, files []model.Attachment) (*model.Pair, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return nil, ErrEmptyMessage
	}

	pair := model.NewPair(text, files)
	e.ctrl.Append(pair)

	cfg := e.currentConfig()

	// Client-side size check: the pair still renders, but fails
	// locally without touching the network.
	for _, f := range files {
		if f.Size() > cfg.Upload.MaxFileBytes {
			e.ctrl.MarkFailed(pair.ID(), msgSizeLimit)
			return pair, nil
		}
	}

	tok := e.registry.Acquire(cancel.LabelSend(pair.ID()))
	go e.submit(pair.ID(), tok, api.SendRequest{
		Text:          text,
		Tool:          e.Tool(),
		Files:         files,
		FirstFileFull: cfg.Upload.FirstFileFullHint,
	})
	return pair, nil
}

// submit performs the network half of Send.
func (e *Engine) submit(provisionalID string, tok *cancel.Token, req api.SendRequest) {
	resp, err := e.client.Send(tok.Context(), req)

	if tok.Canceled() {
		// Whoever canceled already settled the pair's state.
		return
	}
	if err != nil {
		e.ctrl.MarkFailed(provisionalID, failureMessage(err))
		e.registry.Release(tok.Label(), "failed")
		return
	}

	if err := e.ctrl.Reconcile(provisionalID, resp.MessageID); err != nil {
		log.Printf("engine: reconcile %s -> %s: %v", provisionalID, resp.MessageID, err)
		e.ctrl.MarkFailed(provisionalID, msgGeneric)
		e.registry.Release(tok.Label(), "failed")
		return
	}

	// Reconcile retargeted our label to the server id.
	e.registry.Release(cancel.LabelSend(resp.MessageID), "done")

	if err := e.ctrl.Accept(resp.MessageID); err != nil {
		log.Printf("engine: accept %s: %v", resp.MessageID, err)
		return
	}
	e.sched.Start(resp.MessageID)
}

// =============================================================================
// EDIT / REGENERATE
// =============================================================================

// Edit replaces the user turn of an existing pair, truncates downstream
// history, and re-enters the poll loop.
func (e *Engine) Edit(messageID, newText string) error {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return ErrEmptyMessage
	}
	pair := e.ctrl.Get(messageID)
	if pair == nil {
		return ErrUnknownMessage
	}

	if err := e.truncateAfter(messageID); err != nil {
		return err
	}
	// A still-running poll for this pair must not land its old reply
	// on top of the edit.
	e.registry.Release(cancel.LabelPoll(messageID), "superseded")
	pair.SetUserText(newText)
	if err := e.ctrl.ResetForRetry(messageID); err != nil {
		return err
	}

	tok := e.registry.Acquire(cancel.LabelEdit(messageID))
	go e.resubmit(messageID, tok, func(ctx context.Context) (*api.SendResponse, error) {
		return e.client.Edit(ctx, messageID, newText)
	})
	return nil
}

// Regenerate asks for a fresh reply to an existing pair, discarding
// the downstream history the old reply informed.
func (e *Engine) Regenerate(messageID string) error {
	if e.ctrl.Get(messageID) == nil {
		return ErrUnknownMessage
	}

	if err := e.truncateAfter(messageID); err != nil {
		return err
	}
	e.registry.Release(cancel.LabelPoll(messageID), "superseded")
	if err := e.ctrl.ResetForRetry(messageID); err != nil {
		return err
	}

	tok := e.registry.Acquire(cancel.LabelRedo(messageID))
	go e.resubmit(messageID, tok, func(ctx context.Context) (*api.SendResponse, error) {
		return e.client.Regenerate(ctx, messageID)
	})
	return nil
}

// resubmit performs the network half of Edit and Regenerate. The
// server may move the pair to a new id; the rebind retargets every
// label keyed by the old one.
func (e *Engine) resubmit(messageID string, tok *cancel.Token, call func(context.Context) (*api.SendResponse, error)) {
	resp, err := call(tok.Context())

	if tok.Canceled() {
		return
	}
	if err != nil {
		e.ctrl.MarkFailed(messageID, failureMessage(err))
		e.registry.Release(tok.Label(), "failed")
		return
	}

	currentID := messageID
	if resp.MessageID != "" && resp.MessageID != messageID {
		if err := e.ctrl.Rebind(messageID, resp.MessageID); err != nil {
			log.Printf("engine: rebind %s -> %s: %v", messageID, resp.MessageID, err)
		} else {
			currentID = resp.MessageID
		}
	}

	e.registry.Release(relabel(tok.Label(), messageID, currentID), "done")
	e.sched.Start(currentID)
}

// truncateAfter removes downstream pairs and releases any work still
// keyed by them.
func (e *Engine) truncateAfter(messageID string) error {
	removed, err := e.ctrl.TruncateAfter(messageID)
	if err != nil {
		return err
	}
	for _, id := range removed {
		e.registry.Release(cancel.LabelSend(id), "truncated")
		e.registry.Release(cancel.LabelPoll(id), "truncated")
		e.registry.Release(cancel.LabelEdit(id), "truncated")
		e.registry.Release(cancel.LabelRedo(id), "truncated")
	}
	return nil
}

// relabel rewrites a label's id component after a rebind.
func relabel(label, oldID, newID string) string {
	if oldID == newID {
		return label
	}
	return strings.Replace(label, oldID, newID, 1)
}

// =============================================================================
// STOP CONTROL
// =============================================================================

// StopAll cancels every in-flight operation and marks every pending
// reply canceled in the same pass. Bound to the stop control, the
// Escape key, and teardown.
func (e *Engine) StopAll() {
	canceled := e.ctrl.CancelAllPending()
	e.registry.ReleaseAll("stop")
	if e.speech != nil {
		e.speech.Stop()
	}

	// The backend only knows about reconciled ids.
	var serverIDs []string
	for _, id := range canceled {
		if p := e.ctrl.Get(id); p != nil && !p.Provisional() {
			serverIDs = append(serverIDs, id)
		}
	}
	if len(serverIDs) > 0 {
		e.client.NotifyCanceled(serverIDs)
	}
}

// =============================================================================
// SPEECH
// =============================================================================

// ToggleSpeech starts, pauses, or resumes reading a ready reply aloud.
func (e *Engine) ToggleSpeech(messageID string) error {
	if e.speech == nil {
		return speech.ErrNoSpeakableText
	}
	pair := e.ctrl.Get(messageID)
	if pair == nil {
		return ErrUnknownMessage
	}
	if pair.State() != model.ReplyReady {
		return ErrNotReady
	}
	return e.speech.Toggle(messageID, pair.ReplyText())
}

// StopSpeech halts playback without touching network state.
func (e *Engine) StopSpeech() {
	if e.speech != nil {
		e.speech.Stop()
	}
}

// SpeechState reports the current playback state for status displays.
func (e *Engine) SpeechState() speech.State {
	if e.speech == nil {
		return speech.StateIdle
	}
	return e.speech.State()
}

// =============================================================================
// MODELS
// =============================================================================

// Models returns the server's tool/model catalog, cached after the
// first successful fetch.
func (e *Engine) Models(ctx context.Context) ([]api.ModelInfo, error) {
	e.mu.Lock()
	if e.models != nil {
		cached := e.models
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	tok := e.registry.Acquire(cancel.LabelModels)
	defer e.registry.Release(cancel.LabelModels, "done")

	reqCtx, cancelReq := mergeContexts(ctx, tok.Context())
	defer cancelReq()

	models, err := e.client.ListModels(reqCtx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.models = models
	e.mu.Unlock()
	return models, nil
}

// mergeContexts cancels the child when either parent does.
func mergeContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancelFn := context.WithCancel(a)
	stop := context.AfterFunc(b, cancelFn)
	return ctx, func() {
		stop()
		cancelFn()
	}
}

// =============================================================================
// FAILURE MAPPING
// =============================================================================

// failureMessage maps a transport error to the text rendered in place
// of the reply.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, api.ErrPayloadTooLarge):
		return msgSizeLimit
	case errors.Is(err, api.ErrAuthFailed):
		return msgAuthExpired
	case errors.Is(err, api.ErrResourceUnavailable):
		return msgToolMissing
	case errors.Is(err, api.ErrEmptyPayload):
		return msgEmpty
	case errors.Is(err, api.ErrNetwork):
		return msgNetwork
	default:
		return msgGeneric
	}
}
