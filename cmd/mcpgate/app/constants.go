// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import "time"

// Output format constants
const (
	// FormatJSON is the JSON output format
	FormatJSON = "json"
	// FormatText is the text output format
	FormatText = "text"
)

const (
	// daemonWaitTimeout bounds how long commands wait for the daemon to answer.
	daemonWaitTimeout = 10 * time.Second

	// authorizeTimeout bounds the interactive OAuth flow driven by `auth`.
	authorizeTimeout = 6 * time.Minute
)
