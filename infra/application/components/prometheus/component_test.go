package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCounterReusesExistingCollector(t *testing.T) {
	c := NewComponent(&Config{Enabled: true, Namespace: "delegate", Subsystem: "dispatch"})
	first := c.NewCounter("tasks_total", "tasks", []string{"kind"})
	second := c.NewCounter("tasks_total", "tasks", []string{"kind"})
	if first != second {
		t.Fatalf("expected duplicate registration to return the existing collector")
	}
	first.WithLabelValues("sync").Inc()
	if got := testutil.ToFloat64(second.WithLabelValues("sync")); got != 1 {
		t.Fatalf("counter value = %v, want 1", got)
	}
	if c.fqName("x") != "delegate_dispatch_x" {
		t.Fatalf("unexpected fq name %s", c.fqName("x"))
	}
}
