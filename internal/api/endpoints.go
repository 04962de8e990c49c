// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/lamnguyen92/vichat-tui/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// SendRequest is the outbound payload for a new message.
type SendRequest struct {
	Text string
	Tool string

	// Files are attached in order. FirstFileFull is an advisory hint
	// that the first file should get full processing and the rest
	// head/tail only; the backend may ignore it.
	Files         []model.Attachment
	FirstFileFull bool
}

// SendResponse carries the server-assigned identifiers for an accepted
// send, edit or regenerate.
type SendResponse struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// StatusResponse is the reply-status poll result.
type StatusResponse struct {
	Status string `json:"status"` // "ready" or anything else
	Text   string `json:"text,omitempty"`
}

// Ready reports whether the reply has been produced.
func (r *StatusResponse) Ready() bool {
	return r.Status == "ready"
}

// ModelInfo describes a selectable model or tool on the backend.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Available   bool   `json:"available"`
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// Send submits a new message with optional attachments and tool
// selection. Attachments go out as a multipart form.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	body, contentType, err := encodeSendForm(req)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, http.MethodPost, "/api/chat/messages", body, contentType)
	if err != nil {
		return nil, err
	}

	var resp SendResponse
	if err := decodeJSON(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReplyStatus queries the asynchronous reply status for a message.
func (c *Client) ReplyStatus(ctx context.Context, messageID string) (*StatusResponse, error) {
	path := "/api/chat/messages/" + url.PathEscape(messageID) + "/status"
	data, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var resp StatusResponse
	if err := decodeJSON(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Edit replaces the user turn of an existing message and requests a
// new reply. The server may answer with a fresh message identifier.
func (c *Client) Edit(ctx context.Context, messageID, newText string) (*SendResponse, error) {
	payload, err := json.Marshal(map[string]string{"text": newText})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal edit request: %w", err)
	}

	path := "/api/chat/messages/" + url.PathEscape(messageID)
	data, err := c.do(ctx, http.MethodPut, path, payload, "application/json")
	if err != nil {
		return nil, err
	}

	var resp SendResponse
	if err := decodeJSON(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Regenerate requests a new AI turn for an unchanged user turn.
func (c *Client) Regenerate(ctx context.Context, messageID string) (*SendResponse, error) {
	path := "/api/chat/messages/" + url.PathEscape(messageID) + "/regenerate"
	data, err := c.do(ctx, http.MethodPost, path, nil, "")
	if err != nil {
		return nil, err
	}

	var resp SendResponse
	if err := decodeJSON(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NotifyCanceled tells the backend which message ids were client-side
// canceled. Best effort, fire and forget: runs in the background and
// failures are logged and ignored.
func (c *Client) NotifyCanceled(ids []string) {
	if len(ids) == 0 {
		return
	}
	payload, err := json.Marshal(map[string][]string{"messageIds": ids})
	if err != nil {
		return
	}

	go func() {
		ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelFn()
		if _, err := c.do(ctx, http.MethodPost, "/api/chat/cancel", payload, "application/json"); err != nil {
			log.Printf("cancel notification failed (ignored): %v", err)
		}
	}()
}

// ListModels retrieves the selectable models/tools from the backend.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/models", nil, "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []ModelInfo `json:"data"`
	}
	if err := decodeJSON(data, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

// encodeSendForm builds the multipart body for Send.
func encodeSendForm(req SendRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("text", req.Text); err != nil {
		return nil, "", fmt.Errorf("failed to encode send form: %w", err)
	}
	if req.Tool != "" {
		if err := w.WriteField("tool", req.Tool); err != nil {
			return nil, "", fmt.Errorf("failed to encode send form: %w", err)
		}
	}
	if req.FirstFileFull && len(req.Files) > 1 {
		if err := w.WriteField("firstFileFull", "true"); err != nil {
			return nil, "", fmt.Errorf("failed to encode send form: %w", err)
		}
	}
	for _, f := range req.Files {
		part, err := w.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode attachment %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("failed to encode attachment %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize send form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// decodeJSON decodes a success body, flagging non-JSON content as
// ErrMalformedResponse so callers can branch on it independently.
func decodeJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// unmarshalLoose decodes without the malformed-response wrapping, for
// bodies where failure to parse is expected (error envelopes).
func unmarshalLoose(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
