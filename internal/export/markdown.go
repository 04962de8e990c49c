// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/lamnguyen92/vichat-tui/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown format.
type MarkdownExporter struct {
	opts *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{opts: opts}
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(tr *Transcript) ([]byte, error) {
	if tr == nil {
		return nil, fmt.Errorf("transcript is nil")
	}
	if len(tr.Pairs) == 0 {
		return nil, fmt.Errorf("transcript has no messages")
	}

	var sb strings.Builder

	// YAML frontmatter
	if e.opts.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(tr.Title)))
		sb.WriteString(fmt.Sprintf("date: %s\n", formatTimestamp(tr.CreatedAt)))
		if tr.Tool != "" {
			sb.WriteString(fmt.Sprintf("tool: %s\n", escapeYAML(tr.Tool)))
		}
		sb.WriteString(fmt.Sprintf("exchanges: %d\n", len(tr.Pairs)))
		sb.WriteString("generator: vichat\n")
		sb.WriteString("---\n\n")
	}

	sb.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(tr.Title)))

	if e.opts.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		sb.WriteString(fmt.Sprintf("- **Date**: %s\n", formatTimestamp(tr.CreatedAt)))
		if tr.Tool != "" {
			sb.WriteString(fmt.Sprintf("- **Tool**: %s\n", tr.Tool))
		}
		sb.WriteString(fmt.Sprintf("- **Exchanges**: %d\n", len(tr.Pairs)))
		sb.WriteString("\n")
	}

	sb.WriteString("## Conversation\n\n")

	for _, pair := range tr.Pairs {
		e.writePair(&sb, pair)
	}

	return []byte(sb.String()), nil
}

// writePair renders one exchange: the user turn followed by the AI turn.
func (e *MarkdownExporter) writePair(sb *strings.Builder, pair model.Snapshot) {
	sb.WriteString("### [User]")
	if e.opts.IncludeTimestamps {
		sb.WriteString(fmt.Sprintf(" <sub>%s</sub>", formatShortTimestamp(pair.CreatedAt)))
	}
	sb.WriteString("\n\n")
	sb.WriteString(pair.UserText)
	sb.WriteString("\n\n")

	if len(pair.Attachments) > 0 {
		for _, att := range pair.Attachments {
			sb.WriteString(fmt.Sprintf("> Attachment: %s (%s, %d bytes)\n",
				escapeMarkdown(att.Name), att.MIME, len(att.Data)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### [Assistant]")
	if e.opts.IncludeTimestamps {
		sb.WriteString(fmt.Sprintf(" <sub>%s</sub>", formatShortTimestamp(pair.UpdatedAt)))
	}
	if pair.VersionTotal > 1 {
		sb.WriteString(fmt.Sprintf(" <sub>(version %d/%d)</sub>",
			pair.VersionCurrent, pair.VersionTotal))
	}
	sb.WriteString("\n\n")

	switch pair.State {
	case model.ReplyReady:
		sb.WriteString(pair.ReplyText)
	case model.ReplyCanceled:
		sb.WriteString("*[canceled]*")
	case model.ReplyTimeout:
		sb.WriteString("*[timed out]*")
	case model.ReplyFailed:
		if pair.ReplyText != "" {
			sb.WriteString(fmt.Sprintf("*[failed: %s]*", escapeMarkdown(pair.ReplyText)))
		} else {
			sb.WriteString("*[failed]*")
		}
	default:
		sb.WriteString("*[no reply yet]*")
	}
	sb.WriteString("\n\n---\n\n")
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the Markdown MIME type.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
		"[", "\\[",
		"]", "\\]",
		"#", "\\#",
	)
	return replacer.Replace(s)
}

// escapeYAML escapes a string for use as a YAML scalar value.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`") || strings.TrimSpace(s) != s {
		return fmt.Sprintf("%q", s)
	}
	return s
}
