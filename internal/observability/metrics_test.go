package observability

import (
	"strings"
	"testing"
)

func TestRenderPrometheus(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("pipeline_runs_total", map[string]string{"outcome": "completed"}, 3)
	r.SetGauge("jobs_pending", nil, 2)

	out := r.RenderPrometheus()
	if !strings.Contains(out, `meetscribe_pipeline_runs_total{outcome="completed"} 3`) {
		t.Fatalf("missing runs counter in output: %s", out)
	}
	if !strings.Contains(out, "meetscribe_jobs_pending 2") {
		t.Fatalf("missing pending gauge in output: %s", out)
	}
}

func TestCounterLookupIgnoresLabelOrder(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("duration_attempts_total", map[string]string{"strategy": "probe", "result": "ok"}, 1)
	r.IncCounter("duration_attempts_total", map[string]string{"result": "ok", "strategy": "probe"}, 1)

	if got := r.Counter("duration_attempts_total", map[string]string{"strategy": "probe", "result": "ok"}); got != 2 {
		t.Fatalf("Counter() = %v, want 2", got)
	}
}
