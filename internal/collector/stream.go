// Package collector runs the per-stream tail, parse and emit loops.
package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/nginx-collector/internal/ingest"
	"github.com/tinytelemetry/nginx-collector/internal/logsource"
	"github.com/tinytelemetry/nginx-collector/internal/metrics"
	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// Runner is one supervised stream.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
	Status() model.StreamStatus
}

// Stream pairs one tailed file with one Processor. Lines are processed
// strictly in file order.
type Stream[R any] struct {
	name      string
	source    logsource.FileConfig
	processor *ingest.Processor[R]
	metrics   *metrics.Collector
	logger    logrus.FieldLogger

	mu  sync.Mutex
	src *logsource.FileSource
}

// NewStream creates a Stream. The source name is forced to the processor's
// stream name.
func NewStream[R any](source logsource.FileConfig, processor *ingest.Processor[R], m *metrics.Collector, logger logrus.FieldLogger) *Stream[R] {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	source.Name = processor.Stream()
	if source.Logger == nil {
		source.Logger = logger
	}
	return &Stream[R]{
		name:      processor.Stream(),
		source:    source,
		processor: processor,
		metrics:   m,
		logger:    logger.WithField("stream", processor.Stream()),
	}
}

func (s *Stream[R]) Name() string { return s.name }

// Run tails the file until ctx ends or the source fails. A source failure
// is returned; cancellation is not an error.
func (s *Stream[R]) Run(ctx context.Context) error {
	src := logsource.NewFileSource(ctx, s.source)
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
	defer src.Stop()

	for line := range src.Lines() {
		if ctx.Err() != nil {
			break
		}
		s.processor.ProcessLine(ctx, line)
		s.metrics.SetOffset(s.name, src.Cursor().Offset)
	}
	src.Stop()
	<-src.Done()

	if err := src.Err(); err != nil {
		return fmt.Errorf("stream %s: %w", s.name, err)
	}
	return nil
}

// Status reports the stream's state, cursor and counters.
func (s *Stream[R]) Status() model.StreamStatus {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()

	status := model.StreamStatus{
		Name:   s.name,
		State:  model.StateAwaiting,
		Cursor: model.TailCursor{Path: s.source.Path},
		Stats:  s.processor.Stats(),
	}
	if src != nil {
		status.State = src.State()
		status.Cursor = src.Cursor()
		if err := src.Err(); err != nil {
			status.Error = err.Error()
		}
	}
	return status
}
