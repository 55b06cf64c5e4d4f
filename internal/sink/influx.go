// Package sink delivers metric points to InfluxDB v2.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// InfluxConfig holds the connection settings of an InfluxDB v2 server.
type InfluxConfig struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration // per HTTP request, rounded up to whole seconds
}

// InfluxSink writes points to one bucket with blocking writes. It is safe
// for concurrent use.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	url      string
	bucket   string
}

// Connect creates a client for cfg. It does not contact the server; use Ping
// for the liveness check.
func Connect(cfg InfluxConfig) (*InfluxSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("influxdb url is required")
	}
	if cfg.Org == "" {
		return nil, errors.New("influxdb org is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("influxdb bucket is required")
	}

	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(timeoutSeconds(cfg.Timeout))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		url:      cfg.URL,
		bucket:   cfg.Bucket,
	}, nil
}

// Ping checks that the server is reachable and ready.
func (s *InfluxSink) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping influxdb at %s: %w", s.url, err)
	}
	if !ok {
		return fmt.Errorf("ping influxdb at %s: server not ready", s.url)
	}
	return nil
}

// Write sends one point. Failures are returned, never retried.
func (s *InfluxSink) Write(ctx context.Context, point model.MetricPoint) error {
	if err := s.writeAPI.WritePoint(ctx, toInfluxPoint(point)); err != nil {
		return fmt.Errorf("write %s to bucket %s: %w", point.Measurement, s.bucket, err)
	}
	return nil
}

// Close releases the client's idle connections.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func toInfluxPoint(point model.MetricPoint) *write.Point {
	p := write.NewPointWithMeasurement(point.Measurement)
	for _, tag := range point.Tags {
		p.AddTag(tag.Key, tag.Value)
	}
	for k, v := range point.Fields {
		p.AddField(k, v)
	}
	return p.SetTime(point.Timestamp)
}

func timeoutSeconds(d time.Duration) uint {
	if d <= 0 {
		return 10
	}
	secs := uint((d + time.Second - 1) / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}
