// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Attachment is a file attached to a user turn.
type Attachment struct {
	// Name is the original file name.
	Name string

	// MIME is the declared content type (may be empty).
	MIME string

	// Data is the file content.
	Data []byte
}

// Size returns the attachment size in bytes.
func (a Attachment) Size() int64 {
	return int64(len(a.Data))
}
