package duckdb

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const retentionInterval = time.Hour

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
	Logger        logrus.FieldLogger
}

// RetentionCleaner periodically deletes archived points older than the
// retention period.
type RetentionCleaner struct {
	store         *Store
	retentionDays int
	logger        logrus.FieldLogger
	now           func() time.Time
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner runs one cleanup immediately, then hourly.
// It returns nil when retention is 0 (keep forever).
func NewRetentionCleaner(store *Store, conf RetentionConfig) *RetentionCleaner {
	if conf.RetentionDays <= 0 {
		return nil
	}
	logger := conf.Logger
	if logger == nil {
		logger = store.logger
	}

	rc := &RetentionCleaner{
		store:         store,
		retentionDays: conf.RetentionDays,
		logger:        logger.WithField("component", "retention"),
		now:           time.Now,
		done:          make(chan struct{}),
	}

	// Catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()

	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cutoff() time.Time {
	return rc.now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)
}

func (rc *RetentionCleaner) cleanup() {
	rows, err := rc.store.DeleteBefore(rc.cutoff())
	if err != nil {
		rc.logger.WithError(err).Error("retention cleanup failed")
		return
	}
	if rows > 0 {
		rc.logger.WithFields(logrus.Fields{
			"deleted":        rows,
			"retention_days": rc.retentionDays,
		}).Info("deleted expired archived points")
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
