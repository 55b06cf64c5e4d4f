package duckdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

const (
	// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
	DefaultFlushQueueSize = 64
	DefaultBatchSize      = 500
	DefaultFlushInterval  = time.Second
)

// PointWriter persists archived points.
type PointWriter interface {
	InsertPoints(points []model.ArchivedPoint) error
}

// InsertBuffer batches archived points and flushes them to DuckDB
// asynchronously. Add never blocks on DuckDB writes unless the flush queue is
// full, in which case the batch is written inline.
type InsertBuffer struct {
	writer        PointWriter
	logger        logrus.FieldLogger
	mu            sync.Mutex
	pending       []model.ArchivedPoint
	flushChan     chan []model.ArchivedPoint
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	stopOnce      sync.Once
	closing       sync.RWMutex // held for writing while Stop closes the buffer
	stopped       bool

	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix seconds of last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	Logger         logrus.FieldLogger
}

// NewInsertBuffer creates an insert buffer that flushes to writer.
func NewInsertBuffer(writer PointWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := DefaultBatchSize
	flushInterval := DefaultFlushInterval
	flushQueueSize := DefaultFlushQueueSize
	var logger logrus.FieldLogger
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
		logger = conf[0].Logger
	}
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}

	b := &InsertBuffer{
		writer:        writer,
		logger:        logger.WithField("component", "archive"),
		pending:       make([]model.ArchivedPoint, 0, batchSize),
		flushChan:     make(chan []model.ArchivedPoint, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

// logBackpressure logs at most once per 10 seconds when a batch is flushed inline.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		b.logger.WithField("inline_flushes", count).Warn("archive flush queue full, writing inline")
	}
}

func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]model.ArchivedPoint, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch)
}

func (b *InsertBuffer) enqueue(batch []model.ArchivedPoint) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		b.flush(batch)
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		b.flush(batch)
	}
}

func (b *InsertBuffer) flush(batch []model.ArchivedPoint) {
	if err := b.writer.InsertPoints(batch); err != nil {
		b.logger.WithError(err).WithField("points", len(batch)).Error("archive flush failed")
	}
}

// Add queues one point for archiving. Points added after Stop are ignored.
func (b *InsertBuffer) Add(stream string, point model.MetricPoint, delivered bool) {
	b.closing.RLock()
	defer b.closing.RUnlock()
	if b.stopped {
		return
	}
	archived := model.ArchivedPoint{
		Stream:      stream,
		Measurement: point.Measurement,
		Tags:        point.TagMap(),
		Fields:      point.Fields,
		Timestamp:   point.Timestamp,
		Delivered:   delivered,
		ArchivedAt:  time.Now().UTC(),
	}

	b.mu.Lock()
	b.pending = append(b.pending, archived)
	var batch []model.ArchivedPoint
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]model.ArchivedPoint, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch)
	}
}

// Stop flushes remaining points and waits for all writes to complete.
// It is safe to call more than once.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		b.closing.Lock()
		b.stopped = true
		b.closing.Unlock()

		close(b.done)
		// The final drain must reach flushChan before it is closed.
		b.tickWg.Wait()
		b.mu.Lock()
		rest := b.pending
		b.pending = nil
		b.mu.Unlock()
		if len(rest) > 0 {
			b.flushChan <- rest
		}
		close(b.flushChan)
		b.wg.Wait()
	})
}

// InsertPoints appends a batch of points in a single transaction. When the
// batch fails it is retried point by point and unwritable points are dropped.
func (s *Store) InsertPoints(points []model.ArchivedPoint) error {
	if len(points) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBatchTx(ctx, points)
	if err == nil {
		return nil
	}

	var failed int
	for _, p := range points {
		if rerr := s.insertBatchTx(ctx, []model.ArchivedPoint{p}); rerr != nil {
			failed++
			s.logger.WithError(rerr).WithFields(logrus.Fields{
				"stream":      p.Stream,
				"measurement": p.Measurement,
			}).Warn("dropping archived point")
		}
	}
	if failed == len(points) {
		return fmt.Errorf("insert %d points: %w", len(points), err)
	}
	if failed > 0 {
		s.logger.WithFields(logrus.Fields{"failed": failed, "total": len(points)}).Warn("archive batch partially failed")
	}
	return nil
}

func (s *Store) insertBatchTx(ctx context.Context, points []model.ArchivedPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO points (stream, measurement, tags, fields, timestamp, delivered, archived_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		tags, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		fields, err := json.Marshal(p.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		archivedAt := p.ArchivedAt
		if archivedAt.IsZero() {
			archivedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			p.Stream, p.Measurement, string(tags), string(fields),
			p.Timestamp.UTC(), p.Delivered, archivedAt,
		); err != nil {
			return fmt.Errorf("point insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
