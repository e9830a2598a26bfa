// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempRuntimeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.json")
	orig := getRuntimeFilePath
	getRuntimeFilePath = func() (string, error) { return path, nil }
	t.Cleanup(func() { getRuntimeFilePath = orig })
	return path
}

//nolint:paralleltest // replaces the runtime file path
func TestRuntimeInfoRoundTrip(t *testing.T) {
	useTempRuntimeFile(t)

	_, err := ReadRuntimeInfo()
	require.ErrorIs(t, err, ErrNotRunning)

	info := RuntimeInfo{PID: os.Getpid(), Port: 55123, StartedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, WriteRuntimeInfo(info))

	got, err := ReadRuntimeInfo()
	require.NoError(t, err)
	assert.Equal(t, info.PID, got.PID)
	assert.Equal(t, info.Port, got.Port)

	require.NoError(t, RemoveRuntimeInfo())
	require.NoError(t, RemoveRuntimeInfo())
	_, err = ReadRuntimeInfo()
	assert.ErrorIs(t, err, ErrNotRunning)
}

//nolint:paralleltest // replaces the runtime file path
func TestReadRuntimeInfoIgnoresDeadProcess(t *testing.T) {
	useTempRuntimeFile(t)

	require.NoError(t, WriteRuntimeInfo(RuntimeInfo{PID: 0, Port: 1}))
	_, err := ReadRuntimeInfo()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestTerminate(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX sleep binary")
	}

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	require.NoError(t, Terminate(cmd.Process.Pid, time.Second))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process was not terminated")
	}
}
