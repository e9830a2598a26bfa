// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// IsLocalhost reports whether host (optionally with a port) names the loopback interface.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsURL reports whether s is an absolute http or https URL with a host.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateEndpointURL requires HTTPS unless the endpoint is on the loopback interface.
func ValidateEndpointURL(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", endpoint)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if IsLocalhost(u.Host) {
			return nil
		}
		return fmt.Errorf("URL %q must use HTTPS", endpoint)
	default:
		return fmt.Errorf("URL %q has unsupported scheme %q", endpoint, u.Scheme)
	}
}

// Origin returns scheme://host[:port] for rawURL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q is not absolute", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
