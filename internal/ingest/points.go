package ingest

import (
	"strconv"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// BuildAccessPoint maps an access record onto an api_requests point.
func BuildAccessPoint(rec model.AccessRecord) model.MetricPoint {
	return model.MetricPoint{
		Measurement: model.MeasurementRequests,
		Tags: []model.Tag{
			{Key: "method", Value: rec.Method},
			{Key: "endpoint", Value: rec.Path},
			{Key: "status_code", Value: strconv.Itoa(rec.StatusCode)},
			{Key: "remote_addr", Value: rec.RemoteAddr},
		},
		Fields: map[string]any{
			"response_time":   rec.ResponseTimeMs,
			"request_count":   int64(1),
			"body_bytes_sent": rec.BodyBytesSent,
		},
		Timestamp: rec.Timestamp,
	}
}

// BuildErrorPoint maps an error record onto an api_errors point.
func BuildErrorPoint(rec model.ErrorRecord) model.MetricPoint {
	return model.MetricPoint{
		Measurement: model.MeasurementErrors,
		Tags: []model.Tag{
			{Key: "level", Value: rec.Level},
			{Key: "endpoint", Value: rec.Path},
			{Key: "client_ip", Value: rec.ClientIP},
			{Key: "server", Value: rec.Server},
			{Key: "host", Value: rec.Host},
		},
		Fields: map[string]any{
			"error_count": int64(1),
			"message":     rec.Message,
			"request":     rec.Request,
			"upstream":    rec.Upstream,
		},
		Timestamp: rec.Timestamp,
	}
}
