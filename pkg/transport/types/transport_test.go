// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransportType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    TransportType
		wantErr bool
	}{
		{"stdio", TransportTypeStdio, false},
		{"SSE", TransportTypeSSE, false},
		{"streamable-http", TransportTypeStreamableHTTP, false},
		{"streamable", TransportTypeStreamableHTTP, false},
		{"websocket", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTransportType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIDGeneratorIsMonotonicAndUnique(t *testing.T) {
	t.Parallel()

	var g IDGenerator
	first := g.Next()
	assert.Equal(t, int64(1), first.Raw())

	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := g.Next().Raw().(int64)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[v])
			seen[v] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}
