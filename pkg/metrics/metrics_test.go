package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yeisme/storyvault/pkg/configs"
)

func TestInitMetricsRegistersOnce(t *testing.T) {
	cfg := configs.MetricsConfig{Enabled: true, Labels: map[string]string{"service": "storyvault"}}

	if err := InitMetrics(cfg); err != nil {
		t.Fatalf("init metrics: %v", err)
	}

	if err := InitMetrics(cfg); err != nil {
		t.Fatalf("second init: %v", err)
	}

	TasksTotal.WithLabelValues("FORM_DATA_TAG_THEME", "ok").Inc()

	if got := testutil.ToFloat64(TasksTotal.WithLabelValues("FORM_DATA_TAG_THEME", "ok")); got != 1 {
		t.Fatalf("tasks_total = %v, want 1", got)
	}

	mfs, err := GetRegistry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false

	for _, mf := range mfs {
		if mf.GetName() != "enrichment_tasks_total" {
			continue
		}

		found = true

		for _, lp := range mf.GetMetric()[0].GetLabel() {
			if lp.GetName() == "service" && lp.GetValue() != "storyvault" {
				t.Fatalf("service label = %q", lp.GetValue())
			}
		}
	}

	if !found {
		t.Fatal("enrichment_tasks_total not registered")
	}
}
