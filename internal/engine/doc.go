// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine composes the chat client's moving parts into a single
// facade: the optimistic send pipeline, edit and regenerate flows, the
// global stop control, and speech playback.
//
// A send renders the message pair immediately under a provisional id,
// submits in the background, reconciles the id once the server assigns
// one, and hands the pair to the poll scheduler. Failures never leave
// the pair in limbo: every path ends in a terminal state with a
// user-readable reason.
package engine
