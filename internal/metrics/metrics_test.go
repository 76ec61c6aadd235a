package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/spawnwait/internal/metrics"
)

func TestRegistryExposesMetrics(t *testing.T) {
	metrics.EmitBuildInfo()
	metrics.SetSchedulerState(3, 2)
	metrics.ObserveCompletion("metrics_test_task", "success", 250*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "spawnwait_tasks_running 3") {
		t.Fatalf("expected running gauge in body:\n%s", body)
	}
	if !strings.Contains(body, "spawnwait_tasks_queued 2") {
		t.Fatalf("expected queued gauge in body:\n%s", body)
	}
	if !strings.Contains(body, `spawnwait_task_completions_total{result="success"}`) {
		t.Fatalf("expected completion counter in body:\n%s", body)
	}
	if !strings.Contains(body, `spawnwait_task_duration_seconds_count{task="metrics_test_task"} 1`) {
		t.Fatalf("expected duration histogram in body:\n%s", body)
	}
	if !strings.Contains(body, "spawnwait_build_info{") {
		t.Fatalf("expected build info metric in body:\n%s", body)
	}
	if !strings.Contains(body, "go_version=") {
		t.Fatalf("expected go_version label on build info metric:\n%s", body)
	}
}
