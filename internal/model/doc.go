// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for message pairs.
//
// A message pair is the unit the reply engine manages: one user turn
// (text and/or attachments) plus its associated AI turn, addressed by
// a shared identifier. The identifier starts out provisional
// (client-generated) and is reconciled to the server-assigned one
// exactly once, when the initiating request resolves.
//
// # Key Types
//
//   - Pair: one user turn plus its AI turn, with a validated reply state
//   - ReplyState: AI turn state (queued, pending, ready, canceled, failed, timeout)
//   - Attachment: a file attached to the user turn
//
// State transitions are validated here, but only the lifecycle
// controller is supposed to drive them; lower-level components request
// transitions instead of performing them.
package model
