// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lamnguyen92/vichat-tui/internal/api"
	"github.com/lamnguyen92/vichat-tui/internal/cancel"
	"github.com/lamnguyen92/vichat-tui/internal/config"
	"github.com/lamnguyen92/vichat-tui/internal/lifecycle"
	"github.com/lamnguyen92/vichat-tui/internal/model"
	"github.com/lamnguyen92/vichat-tui/internal/poll"
)

// fakeBackend is an httptest chat server with adjustable behavior.
type fakeBackend struct {
	mu sync.Mutex

	nextID       int
	statusCalls  map[string]int
	readyAfter   int // status calls before a reply turns ready
	sendStatus   int // non-zero forces Send to fail with this code
	sendCode     string
	editID       string // non-empty: Edit answers with this message id
	cancelCalls  int
	canceledIDs  []string
	modelsCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{statusCalls: make(map[string]int), readyAfter: 1}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/auth/antiforgery", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "tok", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.sendStatus != 0 {
			w.WriteHeader(b.sendStatus)
			fmt.Fprintf(w, `{"error":{"code":%q,"message":"nope"}}`, b.sendCode)
			return
		}
		b.nextID++
		json.NewEncoder(w).Encode(map[string]string{
			"messageId": fmt.Sprintf("srv-%d", b.nextID),
			"chatId":    "chat-1",
		})
	})

	mux.HandleFunc("GET /api/chat/messages/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		b.mu.Lock()
		b.statusCalls[id]++
		ready := b.statusCalls[id] >= b.readyAfter
		b.mu.Unlock()
		if ready {
			json.NewEncoder(w).Encode(map[string]string{"status": "ready", "text": "reply for " + id})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
	})

	mux.HandleFunc("PUT /api/chat/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		id := b.editID
		b.mu.Unlock()
		if id == "" {
			id = r.PathValue("id")
		}
		json.NewEncoder(w).Encode(map[string]string{"messageId": id, "chatId": "chat-1"})
	})

	mux.HandleFunc("POST /api/chat/messages/{id}/regenerate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"messageId": r.PathValue("id"), "chatId": "chat-1"})
	})

	mux.HandleFunc("POST /api/chat/cancel", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MessageIDs []string `json:"messageIds"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.cancelCalls++
		b.canceledIDs = append(b.canceledIDs, body.MessageIDs...)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/models", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.modelsCalls++
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": "chat", "name": "Chat", "available": true},
				{"id": "translate", "name": "Translate", "available": true},
			},
		})
	})

	return mux
}

// testHarness wires an engine against a fake backend with fast polling.
type testHarness struct {
	backend *fakeBackend
	engine  *Engine
	ctrl    *lifecycle.Controller
	reg     *cancel.Registry
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	backend := newFakeBackend()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Server.BaseURL = srv.URL

	client := api.NewClient(srv.URL)
	reg := cancel.NewRegistry()
	ctrl := lifecycle.NewController(reg, nil, lifecycle.NewBus())
	sched := poll.NewScheduler(client, reg, ctrl).
		WithBackoff(20, time.Millisecond, 5*time.Millisecond, 0)

	eng := New(cfg, client, reg, ctrl, sched, nil)
	return &testHarness{backend: backend, engine: eng, ctrl: ctrl, reg: reg}
}

// waitState blocks until the pair identified by finding its user text
// reaches the wanted state.
func (h *testHarness) waitState(t *testing.T, userText string, want model.ReplyState) model.Snapshot {
	t.Helper()
	var last model.Snapshot
	require.Eventually(t, func() bool {
		for _, snap := range h.ctrl.Pairs() {
			if snap.UserText == userText {
				last = snap
				return snap.State == want
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond, "pair %q never reached %s (last: %+v)", userText, want, last)
	return last
}

func TestSendReachesReady(t *testing.T) {
	h := newHarness(t)

	pair, err := h.engine.Send("hello", nil)
	require.NoError(t, err)
	require.True(t, pair.Provisional())
	require.Equal(t, model.ReplyQueued, pair.State())

	snap := h.waitState(t, "hello", model.ReplyReady)
	require.Equal(t, "srv-1", snap.ID)
	require.False(t, snap.Provisional)
	require.Equal(t, "reply for srv-1", snap.ReplyText)

	// Everything released once the reply landed.
	require.Eventually(t, func() bool { return h.reg.LiveCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestSendEmptyRefused(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Send("   ", nil)
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Zero(t, h.ctrl.Len(), "no pair may be created for an empty send")
}

func TestSendOversizeFileFailsLocally(t *testing.T) {
	h := newHarness(t)
	h.engine.cfg.Upload.MaxFileBytes = 4

	pair, err := h.engine.Send("see file", []model.Attachment{
		{Name: "big.bin", MIME: "application/octet-stream", Data: []byte("way too big")},
	})
	require.NoError(t, err)
	require.Equal(t, model.ReplyFailed, pair.State())
	require.Equal(t, msgSizeLimit, pair.ReplyText())
	require.True(t, pair.Provisional(), "oversize send must never reach the server")
}

func TestApplyConfigTakesEffectOnNextSend(t *testing.T) {
	h := newHarness(t)

	fresh := config.Default()
	fresh.Upload.MaxFileBytes = 4
	fresh.DefaultTool = "translate"
	h.engine.ApplyConfig(fresh)

	require.Equal(t, "translate", h.engine.Tool(),
		"tool should follow a changed default when never picked explicitly")

	// The tightened upload limit applies to the next send.
	pair, err := h.engine.Send("see file", []model.Attachment{
		{Name: "big.bin", MIME: "application/octet-stream", Data: []byte("way too big")},
	})
	require.NoError(t, err)
	require.Equal(t, model.ReplyFailed, pair.State())
	require.Equal(t, msgSizeLimit, pair.ReplyText())
}

func TestApplyConfigKeepsExplicitToolSelection(t *testing.T) {
	h := newHarness(t)
	h.engine.SetTool("translate")

	fresh := config.Default()
	fresh.DefaultTool = "summarize"
	h.engine.ApplyConfig(fresh)

	require.Equal(t, "translate", h.engine.Tool())
}

func TestSendServerErrorMapsMessage(t *testing.T) {
	h := newHarness(t)
	h.backend.sendStatus = http.StatusServiceUnavailable
	h.backend.sendCode = "TOOL_NOT_READY"

	_, err := h.engine.Send("hello", nil)
	require.NoError(t, err)

	snap := h.waitState(t, "hello", model.ReplyFailed)
	require.Equal(t, msgToolMissing, snap.ReplyText)
}

func TestEditRebindsAndRepolls(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Send("first", nil)
	require.NoError(t, err)
	h.waitState(t, "first", model.ReplyReady)

	h.backend.mu.Lock()
	h.backend.editID = "srv-99"
	h.backend.mu.Unlock()

	require.NoError(t, h.engine.Edit("srv-1", "first, amended"))
	snap := h.waitState(t, "first, amended", model.ReplyReady)
	require.Equal(t, "srv-99", snap.ID)
	require.Equal(t, "reply for srv-99", snap.ReplyText)
}

func TestEditTruncatesDownstream(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Send("first", nil)
	require.NoError(t, err)
	h.waitState(t, "first", model.ReplyReady)
	_, err = h.engine.Send("second", nil)
	require.NoError(t, err)
	h.waitState(t, "second", model.ReplyReady)

	require.NoError(t, h.engine.Edit("srv-1", "first, amended"))
	h.waitState(t, "first, amended", model.ReplyReady)
	require.Equal(t, 1, h.ctrl.Len(), "downstream pair must be removed")
}

func TestEditUnknownID(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.engine.Edit("nope", "text"), ErrUnknownMessage)
	require.ErrorIs(t, h.engine.Edit("nope", "  "), ErrEmptyMessage)
}

func TestRegenerateReentersPending(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Send("first", nil)
	require.NoError(t, err)
	h.waitState(t, "first", model.ReplyReady)

	require.NoError(t, h.engine.Regenerate("srv-1"))
	snap := h.waitState(t, "first", model.ReplyReady)
	require.Equal(t, "srv-1", snap.ID)
}

func TestStopAllCancelsAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.backend.readyAfter = 1000 // never ready within the test

	_, err := h.engine.Send("slow one", nil)
	require.NoError(t, err)

	// Wait for reconciliation so the backend knows the id.
	require.Eventually(t, func() bool {
		pairs := h.ctrl.Pairs()
		return len(pairs) == 1 && !pairs[0].Provisional
	}, 5*time.Second, 5*time.Millisecond)

	h.engine.StopAll()

	snap := h.waitState(t, "slow one", model.ReplyCanceled)
	require.Equal(t, model.CanceledMarker, snap.ReplyText)
	require.Zero(t, h.reg.LiveCount())

	require.Eventually(t, func() bool {
		h.backend.mu.Lock()
		defer h.backend.mu.Unlock()
		return h.backend.cancelCalls == 1 && len(h.backend.canceledIDs) == 1 &&
			strings.HasPrefix(h.backend.canceledIDs[0], "srv-")
	}, 5*time.Second, 5*time.Millisecond, "backend should learn about the cancellation")
}

func TestStopAllSkipsProvisionalIDs(t *testing.T) {
	h := newHarness(t)
	h.backend.sendStatus = http.StatusServiceUnavailable
	h.backend.sendCode = "TOOL_NOT_READY"

	_, err := h.engine.Send("never accepted", nil)
	require.NoError(t, err)
	h.waitState(t, "never accepted", model.ReplyFailed)

	h.engine.StopAll()
	time.Sleep(50 * time.Millisecond)

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	require.Zero(t, h.backend.cancelCalls, "provisional ids must not be reported")
}

func TestModelsCached(t *testing.T) {
	h := newHarness(t)

	models, err := h.engine.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)

	_, err = h.engine.Models(context.Background())
	require.NoError(t, err)

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	require.Equal(t, 1, h.backend.modelsCalls, "second call must hit the cache")
}

func TestFailureMessageMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{api.ErrPayloadTooLarge, msgSizeLimit},
		{api.ErrAuthFailed, msgAuthExpired},
		{api.ErrResourceUnavailable, msgToolMissing},
		{api.ErrEmptyPayload, msgEmpty},
		{api.ErrNetwork, msgNetwork},
		{fmt.Errorf("surprise"), msgGeneric},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, failureMessage(tt.err))
	}
}
