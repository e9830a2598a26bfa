// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// DefaultGracePeriod is how long KillProcess waits after SIGTERM before SIGKILL.
const DefaultGracePeriod = 500 * time.Millisecond

// KillProcess terminates pid with SIGTERM, escalating to SIGKILL after DefaultGracePeriod.
func KillProcess(pid int) error {
	return Terminate(pid, DefaultGracePeriod)
}

// Terminate sends SIGTERM and polls for exit for up to grace, then sends SIGKILL.
// A process that is already gone is not an error.
func Terminate(pid int, grace time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return fmt.Errorf("failed to send SIGTERM to process: %w", err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		alive, err := FindProcess(pid)
		if err != nil || !alive {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := proc.Signal(syscall.SIGKILL); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return fmt.Errorf("failed to send SIGKILL to process: %w", err)
	}
	return nil
}
