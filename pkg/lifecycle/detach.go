// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/stacklok/mcpgate/pkg/logger"
)

const (
	// DetachedEnv is set in the environment of a daemon started by RunDetached.
	DetachedEnv = "MCPGATE_DETACHED"
	// DetachedValue is the value of DetachedEnv.
	DetachedValue = "1"
)

// IsDetached reports whether this process was started by RunDetached.
func IsDetached() bool {
	return os.Getenv(DetachedEnv) == DetachedValue
}

// LogFilePath is where a detached daemon writes its output.
func LogFilePath() (string, error) {
	return xdg.StateFile(filepath.Join("mcpgate", "logs", "gateway.log"))
}

// RunDetached starts this executable again with args in a new session, its
// output appended to the daemon log file. It returns the child's pid.
func RunDetached(args []string) (int, error) {
	execPath, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}

	logFilePath, err := LogFilePath()
	if err != nil {
		return 0, fmt.Errorf("failed to create log file path: %w", err)
	}
	// #nosec G304 - the path is derived from the XDG state directory
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logger.Warnf("Warning: Failed to create log file: %v", err)
	} else {
		defer logFile.Close()
		logger.Infof("Logging to: %s", logFilePath)
	}

	// #nosec G204 - execPath is the path to the current binary
	cmd := exec.Command(execPath, args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", DetachedEnv, DetachedValue))
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}
	cmd.Stdin = nil
	cmd.SysProcAttr = getSysProcAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start detached process: %w", err)
	}
	pid := cmd.Process.Pid
	// the child outlives us; release it instead of waiting
	if err := cmd.Process.Release(); err != nil {
		logger.Debugw("failed to release detached process", "pid", pid, "error", err)
	}
	return pid, nil
}
