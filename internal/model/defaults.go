package model

import "time"

// Tailing and measurement constants shared by the collector packages.
const (
	// FileWaitInterval is how often a missing log file is checked for.
	FileWaitInterval = 1 * time.Second
	// TailPollInterval is how often a tailed file is polled for new content.
	TailPollInterval = 100 * time.Millisecond
	// ReplayLines is how many existing lines are replayed when replay-on-start is enabled.
	ReplayLines = 3

	MeasurementRequests = "api_requests"
	MeasurementErrors   = "api_errors"

	// Unknown fills every optional error-log clause that is absent.
	Unknown = "unknown"
)
