// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/mcpgate/pkg/events"
	"github.com/stacklok/mcpgate/pkg/lifecycle/mocks"
)

func TestDiscoveryRouter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		body           string
		setupMock      func(*mocks.MockManager)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "read flag",
			method: http.MethodGet,
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().DiscoveryEnabled().Return(true)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"enabled":true}`,
		},
		{
			name:   "turn off",
			method: http.MethodPut,
			body:   `{"enabled":false}`,
			setupMock: func(m *mocks.MockManager) {
				m.EXPECT().SetDiscoveryEnabled(false)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"enabled":false}`,
		},
		{
			name:           "missing flag",
			method:         http.MethodPut,
			body:           `{}`,
			setupMock:      func(_ *mocks.MockManager) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "enabled is required",
		},
		{
			name:           "malformed body",
			method:         http.MethodPut,
			body:           `on`,
			setupMock:      func(_ *mocks.MockManager) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			manager := mocks.NewMockManager(ctrl)
			tt.setupMock(manager)

			w := httptest.NewRecorder()
			DiscoveryRouter(manager).ServeHTTP(w, httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body)))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
		})
	}
}

func TestLogsRouterDrains(t *testing.T) {
	t.Parallel()

	buf := events.NewBuffer(10)
	buf.Emit(events.Event{
		Type:     events.EventServerLog,
		ServerID: "py",
		Level:    "error",
		Message:  "ERROR: database unreachable",
		Time:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	router := LogsRouter(buf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"server_id":"py"`)
	assert.Contains(t, w.Body.String(), "database unreachable")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"entries":[]}`, w.Body.String())
}

func TestStatusRouter(t *testing.T) {
	t.Parallel()

	router := StatusRouter(func() GatewayStatus {
		return GatewayStatus{Running: true, PID: 42, Port: 55123, Servers: 2, Connected: 1}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"port":55123`)
	assert.Contains(t, w.Body.String(), `"connected":1`)
}
