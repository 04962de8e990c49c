// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package cli provides the line-oriented REPL front-end for vichat.

The REPL is meant for dumb terminals and scripted use where the full
Bubble Tea interface is unavailable. It reads lines with liner (history
and line editing included), sends plain text through the engine, and
blocks until the reply lands, following identifier reconciliations on
the event bus so the wait survives the provisional-to-server id rename.

Slash commands:

	/help             show available commands
	/edit <text>      edit the last message and resend
	/regen            regenerate the last reply
	/stop             cancel every pending reply
	/speak            read the last ready reply aloud (toggle)
	/export [format]  export the transcript (md, html, json)
	/models           list the server's tools/models
	/tool [name]      show or switch the selected tool
	/history          print the conversation so far
	/quit             exit

Ctrl+C during a wait cancels the pending replies; Ctrl+D exits.
*/
package cli
