// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package poll implements the per-message reply polling loop.
//
// Each message gets one explicit polling task with bounded exponential
// backoff plus jitter. The loop terminates on a ready reply, on
// cancellation of its registry token, or when the attempt ceiling is
// exhausted (timeout). The scheduler never sets message state itself;
// it requests transitions from the lifecycle controller, which
// verifies the requesting token is still live.
package poll
