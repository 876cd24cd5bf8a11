package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, service *Service) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	service.ExporterHandler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewService(t *testing.T) {
	t.Run("Should enable the exporter with default config when nil provided", func(t *testing.T) {
		ResetSystemMetricsForTesting()
		service, err := NewService(context.Background(), nil)
		require.NoError(t, err)
		assert.True(t, service.IsInitialized())
		assert.Equal(t, "/metrics", service.Path())
		assert.NotNil(t, service.Streaming())
	})
	t.Run("Should fail with invalid config", func(t *testing.T) {
		service, err := NewService(context.Background(), &Config{Enabled: true, Path: ""})
		assert.Nil(t, service)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "monitoring path cannot be empty")
	})
	t.Run("Should reject paths under the API prefix", func(t *testing.T) {
		_, err := NewService(context.Background(), &Config{Enabled: true, Path: "/api/metrics"})
		require.Error(t, err)
	})
	t.Run("Should use no-op meter when disabled", func(t *testing.T) {
		service, err := NewService(context.Background(), &Config{Enabled: false, Path: "/metrics"})
		require.NoError(t, err)
		assert.False(t, service.IsInitialized())
		assert.Nil(t, service.exporter)
		assert.NotNil(t, service.Meter())
		assert.Nil(t, service.Streaming())
	})
}

func TestService_ExporterHandler(t *testing.T) {
	t.Run("Should return 503 when not initialized", func(t *testing.T) {
		service, err := NewService(context.Background(), &Config{Enabled: false, Path: "/metrics"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
		w := httptest.NewRecorder()
		service.ExporterHandler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "Monitoring service not initialized")
	})
	t.Run("Should expose stream outcomes and registered collectors", func(t *testing.T) {
		ResetSystemMetricsForTesting()
		service, err := NewService(context.Background(), DefaultConfig())
		require.NoError(t, err)
		ctx := context.Background()
		service.Streaming().RecordOutcome(ctx, "strict", StreamOutcomeCompleted)
		service.Streaming().RecordDuration(ctx, "strict", 2*time.Second)
		require.NoError(t, service.RegisterCollector(prom.NewGaugeFunc(
			prom.GaugeOpts{Name: "transcripts_test_gauge", Help: "test"},
			func() float64 { return 3 },
		)))
		body := scrape(t, service)
		assert.Contains(t, body, "transcripts_stream_outcomes")
		assert.Contains(t, body, `outcome="completed"`)
		assert.Contains(t, body, "transcripts_test_gauge 3")
	})
}

func TestService_GinMiddleware(t *testing.T) {
	t.Run("Should pass requests through when disabled", func(t *testing.T) {
		service, err := NewService(context.Background(), &Config{Enabled: false, Path: "/metrics"})
		require.NoError(t, err)
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.Use(service.GinMiddleware())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestNewServiceWithFallback(t *testing.T) {
	t.Run("Should return degraded service when config is invalid", func(t *testing.T) {
		service := NewServiceWithFallback(context.Background(), &Config{Enabled: true, Path: "invalid-path"})
		require.NotNil(t, service)
		assert.False(t, service.IsInitialized())
		assert.Error(t, service.InitializationError())
		assert.NotNil(t, service.Meter())
		assert.NoError(t, service.Shutdown(context.Background()))
	})
}

func TestStreamingMetrics(t *testing.T) {
	t.Run("Should be nil-safe", func(t *testing.T) {
		var m *StreamingMetrics
		ctx := context.Background()
		assert.NotPanics(t, func() {
			m.RecordConnect(ctx, "strict")
			m.RecordDisconnect(ctx, "strict")
			m.RecordEvent(ctx, "content")
			m.RecordOutcome(ctx, "strict", StreamOutcomeFailed)
			m.RecordTimeToFirstEvent(ctx, "strict", time.Millisecond)
		})
	})
}
