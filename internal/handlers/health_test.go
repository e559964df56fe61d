// internal/handlers/health_test.go
package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/stockroom/internal/handlers"
	"github.com/ammerola/stockroom/test/helpers"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubQueues struct {
	queues []string
	err    error
}

func (s stubQueues) Queues() ([]string, error) { return s.queues, s.err }

func (s stubQueues) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Size: 2, Pending: 2}, nil
}

func TestHealthHandler_Health(t *testing.T) {
	t.Run("all_dependencies_healthy", func(t *testing.T) {
		rd := helpers.SetupTestRedis(t)
		h := handlers.NewHealthHandler(stubPinger{}, rd.Client, stubQueues{queues: []string{"default"}},
			"1.2.3", "test", helpers.TestLogger())

		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var status handlers.HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "healthy", status.Status)
		assert.Equal(t, "1.2.3", status.Version)
		assert.Equal(t, "test", status.Environment)
		assert.Contains(t, status.Services, "database")
		assert.Equal(t, "PONG", status.Services["redis"].Details["ping"])
		assert.Contains(t, status.Services["asynq"].Details["queues"], "default")
		assert.NotEmpty(t, status.System.GoVersion)
	})

	t.Run("database_down_degrades", func(t *testing.T) {
		h := handlers.NewHealthHandler(stubPinger{err: errors.New("no route")}, nil, nil,
			"1.2.3", "test", helpers.TestLogger())

		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var status handlers.HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "degraded", status.Status)
		assert.Equal(t, "unhealthy", status.Services["database"].Status)
		assert.NotContains(t, status.Services, "redis")
	})

	t.Run("redis_down_degrades", func(t *testing.T) {
		rd := helpers.SetupTestRedis(t)
		rd.Server.SetError("LOADING")
		h := handlers.NewHealthHandler(stubPinger{}, rd.Client, nil, "1.2.3", "test", helpers.TestLogger())

		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("queue_inspection_failure_degrades", func(t *testing.T) {
		h := handlers.NewHealthHandler(stubPinger{}, nil, stubQueues{err: errors.New("redis down")},
			"1.2.3", "test", helpers.TestLogger())

		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name           string
		pinger         stubPinger
		expectedStatus int
		expectedReady  bool
	}{
		{name: "ready", expectedStatus: http.StatusOK, expectedReady: true},
		{name: "not_ready", pinger: stubPinger{err: errors.New("down")}, expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(tt.pinger, nil, nil, "1.2.3", "test", helpers.TestLogger())

			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var body struct {
				Ready   bool              `json:"ready"`
				Details map[string]string `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedReady, body.Ready)
			assert.Contains(t, body.Details, "database")
		})
	}
}
