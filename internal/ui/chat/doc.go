// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the Bubble Tea chat view for vichat.

The Model renders the conversation transcript in a viewport with a
textarea input below it. Replies arrive asynchronously: the engine's
event bus is bridged into Bubble Tea messages, so the view re-renders
whenever a pair is appended, reconciled, truncated, or changes state.

Key behaviors:

  - Enter submits the composed message through the engine.
  - Esc triggers the engine's global stop (cancels every pending reply
    and any speech session).
  - Ctrl+S toggles read-aloud for the most recent ready reply.
  - Ctrl+R regenerates the most recent reply; left/right arrows while
    the transcript is focused navigate reply versions (display only).
  - A spinner with elapsed time shows next to each in-flight reply.

Ready replies are rendered as Markdown via glamour; pending, canceled,
failed, and timed-out replies show styled state markers instead.
*/
package chat
