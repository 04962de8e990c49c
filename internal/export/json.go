// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts to JSON format.
// NOTE: JSON exports always include the complete transcript data and do
// not respect the metadata/timestamp filtering options. This keeps the
// exported JSON a faithful machine-readable record.
type JSONExporter struct {
	opts *Options
}

// jsonTranscript is the stable on-disk shape. Attachment bytes are
// replaced with metadata so exports stay small.
type jsonTranscript struct {
	Title     string     `json:"title"`
	Tool      string     `json:"tool,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Generator string     `json:"generator"`
	Pairs     []jsonPair `json:"pairs"`
}

type jsonPair struct {
	ID             string           `json:"id"`
	UserText       string           `json:"user_text"`
	ReplyText      string           `json:"reply_text,omitempty"`
	State          string           `json:"state"`
	VersionCurrent int              `json:"version_current,omitempty"`
	VersionTotal   int              `json:"version_total,omitempty"`
	Attachments    []jsonAttachment `json:"attachments,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type jsonAttachment struct {
	Name string `json:"name"`
	MIME string `json:"mime,omitempty"`
	Size int    `json:"size"`
}

// NewJSONExporter creates a new JSON exporter. The options parameter is
// accepted for consistency with other exporters.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{opts: opts}
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(tr *Transcript) ([]byte, error) {
	if tr == nil {
		return nil, fmt.Errorf("transcript is nil")
	}

	out := jsonTranscript{
		Title:     tr.Title,
		Tool:      tr.Tool,
		CreatedAt: tr.CreatedAt,
		Generator: "vichat",
		Pairs:     make([]jsonPair, 0, len(tr.Pairs)),
	}

	for _, pair := range tr.Pairs {
		jp := jsonPair{
			ID:             pair.ID,
			UserText:       pair.UserText,
			ReplyText:      pair.ReplyText,
			State:          string(pair.State),
			VersionCurrent: pair.VersionCurrent,
			VersionTotal:   pair.VersionTotal,
			CreatedAt:      pair.CreatedAt,
			UpdatedAt:      pair.UpdatedAt,
		}
		for _, att := range pair.Attachments {
			jp.Attachments = append(jp.Attachments, jsonAttachment{
				Name: att.Name,
				MIME: att.MIME,
				Size: len(att.Data),
			})
		}
		out.Pairs = append(out.Pairs, jp)
	}

	return json.MarshalIndent(out, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
