// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package process

import (
	"fmt"
	"os"
	"time"
)

// DefaultGracePeriod is unused on Windows; termination is immediate.
const DefaultGracePeriod = 0

// KillProcess terminates pid.
func KillProcess(pid int) error {
	return Terminate(pid, DefaultGracePeriod)
}

// Terminate ends the process with TerminateProcess. Windows has no SIGTERM, so grace is ignored.
func Terminate(pid int, _ time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("failed to terminate process: %w", err)
	}
	return nil
}
