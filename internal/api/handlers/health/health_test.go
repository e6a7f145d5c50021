package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"meal-planner/internal/core/similarity"
	"meal-planner/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeQueue struct{}

func (fakeQueue) GetQueueStatus() *similarity.WarmerStatus {
	return &similarity.WarmerStatus{QueueLength: 3, Workers: 2, MaxQueueSize: 10}
}

type fakeStats struct{}

func (fakeStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"size": 7}
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.HealthCheck)
	r.GET("/ready", h.ReadinessCheck)
	r.GET("/live", h.LivenessCheck)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	common.InitNopLogger()
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return assert.AnError })

	t.Run("healthy", func(t *testing.T) {
		h := NewHandler("1.2.3", map[string]Pinger{"database": ok}, fakeStats{}, fakeQueue{})

		w := serve(h, "/health")
		require.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "1.2.3", resp.Version)
		assert.Equal(t, "ok", resp.Dependencies["database"])
		require.NotNil(t, resp.Queue)
		assert.Equal(t, 3, resp.Queue.QueueLength)
		assert.EqualValues(t, 7, resp.Cache["size"])

		assert.Equal(t, http.StatusOK, serve(h, "/ready").Code)
		assert.Equal(t, http.StatusOK, serve(h, "/live").Code)
	})

	t.Run("degraded", func(t *testing.T) {
		h := NewHandler("1.2.3", map[string]Pinger{"database": ok, "redis": down}, nil, nil)

		w := serve(h, "/health")
		require.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Contains(t, resp.Dependencies["redis"], "error")
		assert.Nil(t, resp.Queue)

		assert.Equal(t, http.StatusServiceUnavailable, serve(h, "/ready").Code)
		assert.Equal(t, http.StatusOK, serve(h, "/live").Code)
	})
}
