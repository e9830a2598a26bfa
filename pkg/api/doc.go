// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api contains the admin REST API of the mcpgate daemon.
//
// The API is served on the gateway's loopback listener under /api/v1. Each
// version lives in its own subpackage (v1) with its routes and wire types;
// the client subpackage is what the CLI uses to talk to a running daemon.
package api
