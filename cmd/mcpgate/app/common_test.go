// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pairs   []string
		sep     string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "nil input",
			pairs: nil,
			sep:   "=",
			want:  nil,
		},
		{
			name:  "env pairs",
			pairs: []string{"API_KEY=abc", "EMPTY=", "WITH_EQ=a=b"},
			sep:   "=",
			want:  map[string]string{"API_KEY": "abc", "EMPTY": "", "WITH_EQ": "a=b"},
		},
		{
			name:  "headers trim spaces",
			pairs: []string{"Authorization: Bearer xyz", "X-Trace:1"},
			sep:   ":",
			want:  map[string]string{"Authorization": "Bearer xyz", "X-Trace": "1"},
		},
		{
			name:    "missing separator",
			pairs:   []string{"API_KEY"},
			sep:     "=",
			wantErr: true,
		},
		{
			name:    "empty key",
			pairs:   []string{"=value"},
			sep:     "=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseKeyValues(tt.pairs, tt.sep)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateFormat(FormatText))
	assert.NoError(t, ValidateFormat(FormatJSON))
	assert.Error(t, ValidateFormat("yaml"))
}

func TestPrintJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"calls": 2}))
	assert.Equal(t, "{\n  \"calls\": 2\n}\n", buf.String())
}

func TestOrDash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
}
