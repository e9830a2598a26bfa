// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package versions provides build version information for mcpgate.
package versions

import (
	"fmt"
	"runtime"
	"time"
)

const unknownStr = "unknown"

// Version information set by build using -ldflags
var (
	// Version is the current version of mcpgate
	Version = "dev"
	// Commit is the git commit hash of the build
	//nolint:goconst // This is a placeholder for the commit hash
	Commit = unknownStr
	// BuildDate is the date when the binary was built
	// nolint:goconst // This is a placeholder for the build date
	BuildDate = unknownStr
)

// VersionInfo represents the version information
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information
func GetVersionInfo() VersionInfo {
	ver := Version
	if ver == "dev" {
		// development builds report the commit they came from
		n := min(8, len(Commit))
		ver = "build-" + Commit[:n]
	}

	buildDate := BuildDate
	if t, err := time.Parse(time.RFC3339, BuildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 MST")
	}

	return VersionInfo{
		Version:   ver,
		Commit:    Commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// ClientName is the implementation name reported to MCP backends.
const ClientName = "mcpgate"

// UserAgent returns the User-Agent used for outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", ClientName, GetVersionInfo().Version)
}
