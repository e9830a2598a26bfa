// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/stacklok/mcpgate/pkg/networking"
)

// Validate checks that a backend definition is complete enough to be stored.
func (b *BackendConfig) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("backend name is required")
	}
	switch b.Transport {
	case TransportStdio:
		if b.Command == "" {
			return fmt.Errorf("backend %q: command is required for stdio transport", b.Name)
		}
	case TransportHTTP:
		if !networking.IsURL(b.URL) {
			return fmt.Errorf("backend %q: a valid http(s) url is required for http transport", b.Name)
		}
		switch b.HTTPMode {
		case "", HTTPModeAuto, HTTPModeStreamable, HTTPModeSSE:
		default:
			return fmt.Errorf("backend %q: unknown http_mode %q", b.Name, b.HTTPMode)
		}
	default:
		return fmt.Errorf("backend %q: unknown transport %q", b.Name, b.Transport)
	}
	return nil
}
