// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lifecycle implements the message lifecycle controller.
//
// The controller is the only component allowed to change a pair's
// reply state. The poll scheduler and the send pipeline request
// transitions; the controller approves them after checking that the
// requesting operation's cancellation token is still the live one for
// its label, so a stale poll can never overwrite a newer cancellation.
//
// Cross-component signaling (reconciled identifiers, state changes,
// history truncation) goes through a typed event bus with
// fire-and-forget broadcast semantics.
package lifecycle
