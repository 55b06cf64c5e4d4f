package sink

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// PointWriter is the blocking write operation of a sink.
type PointWriter interface {
	Write(ctx context.Context, point model.MetricPoint) error
}

// Archiver keeps a local copy of every built point with its delivery outcome.
type Archiver interface {
	Add(stream string, point model.MetricPoint, delivered bool)
}

// Writer emits points with a drop-and-continue policy: a failed write is
// logged and the point is discarded.
type Writer struct {
	sink    PointWriter
	archive Archiver
	logger  logrus.FieldLogger
}

// NewWriter creates a Writer. archive may be nil.
func NewWriter(sink PointWriter, archive Archiver, logger logrus.FieldLogger) *Writer {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &Writer{
		sink:    sink,
		archive: archive,
		logger:  logger.WithField("component", "sink"),
	}
}

// Emit writes point and reports whether it was delivered.
func (w *Writer) Emit(ctx context.Context, stream string, point model.MetricPoint) bool {
	err := w.sink.Write(ctx, point)
	delivered := err == nil

	if err != nil {
		entry := w.logger.WithFields(logrus.Fields{
			"stream":      stream,
			"measurement": point.Measurement,
		}).WithError(err)
		if ctx.Err() != nil {
			entry.Debug("write abandoned during shutdown")
		} else {
			entry.Error("failed to write point, dropped")
		}
	}

	if w.archive != nil {
		w.archive.Add(stream, point, delivered)
	}
	return delivered
}
