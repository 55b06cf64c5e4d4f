package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_CountsPerStream(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := New(reg)

	c.LineRead("access")
	c.LineRead("access")
	c.LineRead("error")
	c.LineDropped("access")
	c.PointWritten("access")
	c.WriteFailed("error")
	c.SetOffset("access", 4096)

	if got := testutil.ToFloat64(c.LinesRead.WithLabelValues("access")); got != 2 {
		t.Fatalf("access lines read = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.LinesRead.WithLabelValues("error")); got != 1 {
		t.Fatalf("error lines read = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.LinesDropped.WithLabelValues("access")); got != 1 {
		t.Fatalf("access lines dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.PointsWritten.WithLabelValues("access")); got != 1 {
		t.Fatalf("access points written = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.WriteFailures.WithLabelValues("error")); got != 1 {
		t.Fatalf("error write failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.TailOffset.WithLabelValues("access")); got != 4096 {
		t.Fatalf("access offset = %v, want 4096", got)
	}
}

func TestCollector_ExpositionNames(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := New(reg)
	c.LineRead("access")

	expected := `
# HELP nginx_collector_lines_read_total Total number of log lines read per stream
# TYPE nginx_collector_lines_read_total counter
nginx_collector_lines_read_total{stream="access"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "nginx_collector_lines_read_total"); err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.LineRead("access")
	c.LineDropped("access")
	c.PointWritten("access")
	c.WriteFailed("access")
	c.SetOffset("access", 1)
}
