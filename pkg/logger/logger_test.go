// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-core/env/mocks"
	"github.com/stacklok/toolhive-core/logging"
)

func TestUnstructuredLogsCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"Default Case", "", true},
		{"Explicitly True", "true", true},
		{"Explicitly False", "false", false},
		{"Invalid Value", "not-a-bool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			mockEnv := mocks.NewMockReader(ctrl)
			mockEnv.EXPECT().Getenv("UNSTRUCTURED_LOGS").Return(tt.envValue)

			assert.Equal(t, tt.expected, unstructuredLogsWithEnv(mockEnv))
		})
	}
}

func setSingletonForTest(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := singleton.Load()
	singleton.Store(l)
	t.Cleanup(func() { singleton.Store(prev) })
}

func TestLogLevels(t *testing.T) { //nolint:paralleltest // mutates singleton
	tests := []struct {
		name     string
		logFn    func()
		contains string
	}{
		{"Debugf", func() { Debugf("debug %s", "formatted") }, "debug formatted"},
		{"Infow", func() { Infow("info kv", "server", "echo") }, "server=echo"},
		{"Warn", func() { Warn("warn msg") }, "warn msg"},
		{"Errorf", func() { Errorf("error %d", 42) }, "error 42"},
		{"Logw at warn", func() { Logw(slog.LevelWarn, "stderr line", "server", "py") }, "level=WARN"},
	}

	for _, tc := range tests { //nolint:paralleltest // mutates singleton
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			setSingletonForTest(t, logging.New(
				logging.WithOutput(&buf),
				logging.WithFormat(logging.FormatText),
				logging.WithLevel(slog.LevelDebug),
			))

			tc.logFn()

			assert.Contains(t, buf.String(), tc.contains)
		})
	}
}

func TestInitializeHonoursDebugFlag(t *testing.T) { //nolint:paralleltest // mutates singleton and viper
	prev := singleton.Load()
	t.Cleanup(func() {
		singleton.Store(prev)
		viper.Set("debug", false)
	})

	ctrl := gomock.NewController(t)
	mockEnv := mocks.NewMockReader(ctrl)
	mockEnv.EXPECT().Getenv("UNSTRUCTURED_LOGS").Return("false")

	viper.Set("debug", true)
	InitializeWithEnv(mockEnv)

	assert.True(t, Get().Enabled(t.Context(), slog.LevelDebug))
}
