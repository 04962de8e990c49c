// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cancel provides a label-keyed cancellation registry for the
// chat engine.
//
// Every network call and retry timer in the engine is owned by exactly
// one labeled token. Acquiring a token under a label that already has
// one aborts the previous token first, so at most one operation per
// label is ever live. The registry also tracks pending timers so that
// ReleaseAll can sweep everything in one call (stop control, Escape,
// shutdown).
//
// Label conventions used across the engine:
//
//	send:<id>    outbound send for a message pair
//	poll:<id>    reply status polling loop
//	edit:<id>    edit of an existing user turn
//	redo:<id>    regenerate of an existing AI turn
//	models:list  model list fetch
package cancel
