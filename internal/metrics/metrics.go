// Package metrics exposes the collector's own counters in prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nginx_collector"

// Collector holds the per-stream self metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	LinesRead     *prometheus.CounterVec
	LinesDropped  *prometheus.CounterVec
	PointsWritten *prometheus.CounterVec
	WriteFailures *prometheus.CounterVec
	TailOffset    *prometheus.GaugeVec
}

// New creates the collector metrics and registers them on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		LinesRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_read_total",
				Help:      "Total number of log lines read per stream",
			},
			[]string{"stream"},
		),
		LinesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_dropped_total",
				Help:      "Total number of log lines that did not match the stream grammar",
			},
			[]string{"stream"},
		),
		PointsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "points_written_total",
				Help:      "Total number of metric points written to the sink",
			},
			[]string{"stream"},
		),
		WriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "write_failures_total",
				Help:      "Total number of metric points dropped because the sink write failed",
			},
			[]string{"stream"},
		),
		TailOffset: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tail_offset_bytes",
				Help:      "Current read offset of the tailed log file",
			},
			[]string{"stream"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.LinesRead, c.LinesDropped, c.PointsWritten, c.WriteFailures, c.TailOffset)
	}
	return c
}

func (c *Collector) LineRead(stream string) {
	if c == nil {
		return
	}
	c.LinesRead.WithLabelValues(stream).Inc()
}

func (c *Collector) LineDropped(stream string) {
	if c == nil {
		return
	}
	c.LinesDropped.WithLabelValues(stream).Inc()
}

func (c *Collector) PointWritten(stream string) {
	if c == nil {
		return
	}
	c.PointsWritten.WithLabelValues(stream).Inc()
}

func (c *Collector) WriteFailed(stream string) {
	if c == nil {
		return
	}
	c.WriteFailures.WithLabelValues(stream).Inc()
}

// SetOffset records the tail cursor of stream.
func (c *Collector) SetOffset(stream string, offset int64) {
	if c == nil {
		return
	}
	c.TailOffset.WithLabelValues(stream).Set(float64(offset))
}
