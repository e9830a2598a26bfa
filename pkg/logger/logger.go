// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides the process-wide logger used by the mcpgate daemon and CLI.
//
// It is a thin shim over toolhive-core/logging. Components that want a logger
// injected can use [Get]; everything else calls the package-level helpers.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"
	"github.com/stacklok/toolhive-core/logging"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(logging.New())
}

func get() *slog.Logger {
	return singleton.Load()
}

// Get returns the underlying *slog.Logger for injection into structs.
func Get() *slog.Logger {
	return get()
}

// Set replaces the singleton logger. Tests use it to capture output.
func Set(l *slog.Logger) {
	singleton.Store(l)
}

// Debug logs a message at debug level.
func Debug(msg string) {
	get().Debug(msg)
}

// Debugf logs a formatted message at debug level.
func Debugf(msg string, args ...any) {
	get().Debug(fmt.Sprintf(msg, args...))
}

// Debugw logs a message at debug level with key-value pairs.
func Debugw(msg string, keysAndValues ...any) {
	get().Debug(msg, keysAndValues...)
}

// Info logs a message at info level.
func Info(msg string) {
	get().Info(msg)
}

// Infof logs a formatted message at info level.
func Infof(msg string, args ...any) {
	get().Info(fmt.Sprintf(msg, args...))
}

// Infow logs a message at info level with key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	get().Info(msg, keysAndValues...)
}

// Warn logs a message at warning level.
func Warn(msg string) {
	get().Warn(msg)
}

// Warnf logs a formatted message at warning level.
func Warnf(msg string, args ...any) {
	get().Warn(fmt.Sprintf(msg, args...))
}

// Warnw logs a message at warning level with key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	get().Warn(msg, keysAndValues...)
}

// Error logs a message at error level.
func Error(msg string) {
	get().Error(msg)
}

// Errorf logs a formatted message at error level.
func Errorf(msg string, args ...any) {
	get().Error(fmt.Sprintf(msg, args...))
}

// Errorw logs a message at error level with key-value pairs.
func Errorw(msg string, keysAndValues ...any) {
	get().Error(msg, keysAndValues...)
}

// Logw logs a message at an arbitrary level with key-value pairs. It is used
// when the level is only known at runtime, such as for re-logged backend output.
func Logw(level slog.Level, msg string, keysAndValues ...any) {
	get().Log(context.Background(), level, msg, keysAndValues...)
}

// Initialize creates and configures the logger.
// If UNSTRUCTURED_LOGS is false the output is JSON, otherwise plain text.
func Initialize() {
	InitializeWithEnv(&env.OSReader{})
}

// InitializeWithEnv is Initialize with an injectable environment reader.
func InitializeWithEnv(envReader env.Reader) {
	var opts []logging.Option

	if unstructuredLogsWithEnv(envReader) {
		opts = append(opts, logging.WithFormat(logging.FormatText))
	}

	if viper.GetBool("debug") {
		opts = append(opts, logging.WithLevel(slog.LevelDebug))
	}

	singleton.Store(logging.New(opts...))
}

func unstructuredLogsWithEnv(envReader env.Reader) bool {
	unstructuredLogs, err := strconv.ParseBool(envReader.Getenv("UNSTRUCTURED_LOGS"))
	if err != nil {
		// unset or unparsable: default to text output
		return true
	}
	return unstructuredLogs
}
