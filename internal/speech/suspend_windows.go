// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package speech

import (
	"errors"
	"os/exec"
)

var errNoSuspend = errors.New("speech: process suspension not supported on windows")

func suspendProcess(cmd *exec.Cmd) error {
	return errNoSuspend
}

func resumeProcess(cmd *exec.Cmd) error {
	return errNoSuspend
}
