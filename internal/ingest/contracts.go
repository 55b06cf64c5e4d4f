package ingest

import (
	"context"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// PointEmitter hands one metric point of a stream to the sink. It reports
// whether the point was delivered; failures are handled by the emitter and
// never retried.
type PointEmitter interface {
	Emit(ctx context.Context, stream string, point model.MetricPoint) bool
}

// Builder maps a parsed record of type R onto a metric point.
type Builder[R any] func(R) model.MetricPoint
