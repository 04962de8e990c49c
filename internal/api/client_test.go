// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lamnguyen92/vichat-tui/internal/model"
)

// newAuthServer builds a test server whose status endpoint rejects the
// first rejectN requests with 401 and whose warm-up endpoint sets the
// anti-forgery cookie.
func newAuthServer(t *testing.T, rejectN int) (*httptest.Server, *int32, *int32) {
	t.Helper()
	var statusCalls, warmUps int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/antiforgery", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&warmUps, 1)
		http.SetCookie(w, &http.Cookie{Name: antiForgeryCookie, Value: "fresh-token"})
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/chat/messages/m1/status", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&statusCalls, 1)
		if int(n) <= rejectN {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get(antiForgeryHeader) == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready","text":"hi"}`))
	})

	return httptest.NewServer(mux), &statusCalls, &warmUps
}

func TestAuthRejectionRetriesExactlyOnce(t *testing.T) {
	srv, statusCalls, warmUps := newAuthServer(t, 1)
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.ReplyStatus(context.Background(), "m1")
	require.NoError(t, err)
	require.True(t, resp.Ready())
	require.Equal(t, "hi", resp.Text)

	require.EqualValues(t, 2, atomic.LoadInt32(statusCalls), "original call + one retry")
	require.EqualValues(t, 1, atomic.LoadInt32(warmUps), "exactly one warm-up")
}

func TestSecondAuthRejectionSurfaces(t *testing.T) {
	srv, statusCalls, warmUps := newAuthServer(t, 10)
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ReplyStatus(context.Background(), "m1")
	require.ErrorIs(t, err, ErrAuthFailed)

	require.EqualValues(t, 2, atomic.LoadInt32(statusCalls), "no retries beyond the first")
	require.EqualValues(t, 1, atomic.LoadInt32(warmUps))
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int
		want error
	}{
		{"size limit", `{"error":{"code":"SIZE_LIMIT","message":"file too big"}}`, 400, ErrPayloadTooLarge},
		{"tool not ready", `{"error":{"code":"TOOL_NOT_READY","message":"warming up"}}`, 409, ErrResourceUnavailable},
		{"empty payload", `{"error":{"code":"EMPTY_PAYLOAD","message":"nothing to send"}}`, 400, ErrEmptyPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.code)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL)
			_, err := c.ReplyStatus(context.Background(), "m1")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUnparseableErrorBodyFallsBackToAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ReplyStatus(context.Background(), "m1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Equal(t, "upstream exploded", apiErr.Message)
}

func TestMalformedSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ReplyStatus(context.Background(), "m1")
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestNetworkFailureIsTyped(t *testing.T) {
	c := NewClient("http://127.0.0.1:1") // nothing listens here
	_, err := c.ReplyStatus(context.Background(), "m1")
	require.ErrorIs(t, err, ErrNetwork)
}

func TestContextCancellationIsNotNetworkFailure(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()

	c := NewClient("http://127.0.0.1:1")
	_, err := c.ReplyStatus(ctx, "m1")
	require.True(t, errors.Is(err, context.Canceled))
}

func TestSendEncodesMultipart(t *testing.T) {
	var gotText, gotTool, gotHint string
	var fileNames []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotText = r.FormValue("text")
		gotTool = r.FormValue("tool")
		gotHint = r.FormValue("firstFileFull")
		for _, fhs := range r.MultipartForm.File["files"] {
			fileNames = append(fileNames, fhs.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messageId":"srv-1","chatId":"chat-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Send(context.Background(), SendRequest{
		Text:          "hello",
		Tool:          "summarizer",
		FirstFileFull: true,
		Files: []model.Attachment{
			{Name: "a.txt", Data: []byte("aaa")},
			{Name: "b.txt", Data: []byte("bbb")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "srv-1", resp.MessageID)
	require.Equal(t, "chat-1", resp.ChatID)
	require.Equal(t, "hello", gotText)
	require.Equal(t, "summarizer", gotTool)
	require.Equal(t, "true", gotHint, "multi-file hint should be sent")
	require.Equal(t, []string{"a.txt", "b.txt"}, fileNames)
}
