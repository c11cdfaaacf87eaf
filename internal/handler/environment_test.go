package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellbox/internal/apperror"
	"shellbox/internal/handler"
	"shellbox/internal/service"
)

// MockEnvironmentService implements handler.EnvironmentService.
type MockEnvironmentService struct {
	Status     service.EnvironmentStatus
	RestartErr error
	Restarts   int
}

func (m *MockEnvironmentService) Restart(_ context.Context) error {
	m.Restarts++
	return m.RestartErr
}

func (m *MockEnvironmentService) EnvironmentStatus() service.EnvironmentStatus {
	return m.Status
}

func TestEnvironmentHandler_HandleStatus(t *testing.T) {
	mock := &MockEnvironmentService{
		Status: service.EnvironmentStatus{State: "ready", Host: "127.0.0.1", Port: 2222, User: "vagrant"},
	}
	h := handler.NewEnvironmentHandler(mock, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/environment", nil)
	rr := httptest.NewRecorder()

	h.HandleStatus(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var status service.EnvironmentStatus
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	assert.Equal(t, "ready", status.State)
	assert.Equal(t, 2222, status.Port)
}

func TestEnvironmentHandler_HandleRestart(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mock := &MockEnvironmentService{
			Status: service.EnvironmentStatus{State: "ready"},
		}
		h := handler.NewEnvironmentHandler(mock, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/environment/restart", nil)
		rr := httptest.NewRecorder()

		h.HandleRestart(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, mock.Restarts)
	})

	t.Run("restart failure", func(t *testing.T) {
		mock := &MockEnvironmentService{
			RestartErr: apperror.EnvironmentRestartFailed("vagrant reload: exit status 1"),
		}
		h := handler.NewEnvironmentHandler(mock, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/environment/restart", nil)
		rr := httptest.NewRecorder()

		h.HandleRestart(rr, req)

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

		var errRes handler.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&errRes))
		assert.Equal(t, "environment_unavailable", errRes.Error)
	})
}
