// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the authenticated HTTP client for the chat
// backend.
//
// Every request carries an anti-forgery header sourced from a
// cookie-backed value. When the server rejects a request with an
// authentication status, the client performs exactly one silent
// warm-up call to refresh the cookie and retries the original request
// once; a second rejection is surfaced to the caller. There are no
// further retries, so a genuinely expired session fails fast instead
// of looping.
//
// Failures are distinguished for callers: network failure (no response
// reached the client), HTTP failure (status >= 400, with a structured
// error code parsed from the body when present), and a malformed
// success body.
package api
