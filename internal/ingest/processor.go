package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/nginx-collector/internal/logparse"
	"github.com/tinytelemetry/nginx-collector/internal/metrics"
	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// Processor parses raw lines of one stream, builds metric points and hands
// them to the emitter.
type Processor[R any] struct {
	stream  string
	parser  logparse.Parser[R]
	build   Builder[R]
	emitter PointEmitter
	metrics *metrics.Collector
	logger  logrus.FieldLogger

	linesRead     atomic.Int64
	linesDropped  atomic.Int64
	pointsEmitted atomic.Int64
	writeFailures atomic.Int64
}

// ProcessorConfig holds the collaborators of a Processor.
type ProcessorConfig[R any] struct {
	Stream  string
	Parser  logparse.Parser[R]
	Build   Builder[R]
	Emitter PointEmitter
	Metrics *metrics.Collector // optional
	Logger  logrus.FieldLogger // optional
}

// NewProcessor creates a Processor.
func NewProcessor[R any](cfg ProcessorConfig[R]) *Processor[R] {
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &Processor[R]{
		stream:  cfg.Stream,
		parser:  cfg.Parser,
		build:   cfg.Build,
		emitter: cfg.Emitter,
		metrics: cfg.Metrics,
		logger:  logger.WithField("stream", cfg.Stream),
	}
}

// ProcessResult holds the outcome of one processed line.
type ProcessResult struct {
	Point     model.MetricPoint
	Delivered bool
}

// ProcessLine runs one line through parse, build and emit. It returns nil
// when the line does not match the grammar.
func (p *Processor[R]) ProcessLine(ctx context.Context, line string) *ProcessResult {
	p.linesRead.Add(1)
	p.metrics.LineRead(p.stream)

	record, ok := p.parser.Parse(line)
	if !ok {
		p.linesDropped.Add(1)
		p.metrics.LineDropped(p.stream)
		p.logger.WithField("line", line).Debug("line does not match grammar, dropped")
		return nil
	}

	point := p.build(record)
	delivered := p.emitter.Emit(ctx, p.stream, point)
	if delivered {
		p.pointsEmitted.Add(1)
		p.metrics.PointWritten(p.stream)
	} else {
		p.writeFailures.Add(1)
		p.metrics.WriteFailed(p.stream)
	}

	return &ProcessResult{Point: point, Delivered: delivered}
}

// Stream returns the stream name.
func (p *Processor[R]) Stream() string {
	return p.stream
}

// Stats returns a snapshot of the processor counters.
func (p *Processor[R]) Stats() model.StreamStats {
	return model.StreamStats{
		LinesRead:     p.linesRead.Load(),
		LinesDropped:  p.linesDropped.Load(),
		PointsEmitted: p.pointsEmitted.Load(),
		WriteFailures: p.writeFailures.Load(),
	}
}

// NewAccessProcessor wires the access grammar to the api_requests builder.
func NewAccessProcessor(stream string, nower logparse.Nower, emitter PointEmitter, m *metrics.Collector, logger logrus.FieldLogger) *Processor[model.AccessRecord] {
	return NewProcessor(ProcessorConfig[model.AccessRecord]{
		Stream:  stream,
		Parser:  logparse.NewAccessParser(nower),
		Build:   BuildAccessPoint,
		Emitter: emitter,
		Metrics: m,
		Logger:  logger,
	})
}

// NewErrorProcessor wires the error grammar to the api_errors builder.
// Error log timestamps are read in loc.
func NewErrorProcessor(stream string, nower logparse.Nower, loc *time.Location, emitter PointEmitter, m *metrics.Collector, logger logrus.FieldLogger) *Processor[model.ErrorRecord] {
	return NewProcessor(ProcessorConfig[model.ErrorRecord]{
		Stream:  stream,
		Parser:  logparse.NewErrorParser(nower, loc),
		Build:   BuildErrorPoint,
		Emitter: emitter,
		Metrics: m,
		Logger:  logger,
	})
}
