// =============================================================================
// 文件: internal/metrics/server_test.go
// 描述: 健康检查端点测试
// =============================================================================
package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLivenessTogglesWithSetHealthy(t *testing.T) {
	s := NewMetricsServer(":0", "/metrics", "/health")

	rec := httptest.NewRecorder()
	s.handleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("初始状态应为存活: got %d", rec.Code)
	}

	s.SetHealthy(false)
	rec = httptest.NewRecorder()
	s.handleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("SetHealthy(false) 后探针应翻红: got %d", rec.Code)
	}

	s.SetHealthy(true)
	rec = httptest.NewRecorder()
	s.handleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("SetHealthy(true) 后探针应恢复: got %d", rec.Code)
	}
}

func TestHealthUsesRegisteredCheck(t *testing.T) {
	s := NewMetricsServer(":0", "/metrics", "/health")
	s.SetHealthCheck(func() HealthStatus {
		return HealthStatus{
			Status:    "degraded",
			Timestamp: time.Now(),
			Uptime:    time.Minute,
		}
	})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("非 healthy 状态应返回 503: got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("应答应为 JSON: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("状态不正确: got %s", status.Status)
	}
}
