// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"fmt"
	"hash/fnv"
	"net"
	"os"
	"os/user"

	"github.com/stacklok/mcpgate/pkg/logger"
)

const (
	// PortRangeStart is the first port of the range the gateway prefers.
	PortRangeStart = 55000
	// PortRangeSize is the number of ports in the preferred range.
	PortRangeSize = 10000
	// PortAttempts is how many consecutive ports are tried before falling back to an ephemeral port.
	PortAttempts = 20
)

// CurrentUsername returns USER, then USERNAME, then the OS account name.
func CurrentUsername() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// PreferredPort maps a username onto a stable port in the preferred range,
// so each user on a shared host gets their own well-known gateway address.
func PreferredPort(username string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(username))
	return PortRangeStart + int(h.Sum64()%PortRangeSize)
}

// candidatePorts lists the ports tried in order: the override (if any), then
// PortAttempts consecutive ports from preferred, wrapping inside the range.
func candidatePorts(preferred, override int) []int {
	ports := make([]int, 0, PortAttempts+1)
	if override > 0 {
		ports = append(ports, override)
	}
	offset := preferred - PortRangeStart
	for i := 0; i < PortAttempts; i++ {
		ports = append(ports, PortRangeStart+(offset+i)%PortRangeSize)
	}
	return ports
}

// ListenLoopback binds a TCP listener on 127.0.0.1. It tries the override port,
// then the user's preferred port and its neighbours, then any free port.
func ListenLoopback(override int) (net.Listener, error) {
	preferred := PreferredPort(CurrentUsername())
	for _, port := range candidatePorts(preferred, override) {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return l, nil
		}
		logger.Debugf("port %d unavailable: %v", port, err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to bind loopback listener: %w", err)
	}
	logger.Warnf("preferred ports busy, gateway bound to ephemeral port %d", l.Addr().(*net.TCPAddr).Port)
	return l, nil
}
