package model

// StreamState is the lifecycle state of one tailed log stream.
type StreamState string

const (
	StateAwaiting  StreamState = "awaiting"
	StateReplaying StreamState = "replaying"
	StateTailing   StreamState = "tailing"
	StateStopped   StreamState = "stopped"
	StateFailed    StreamState = "failed"
)

// TailCursor is the read position of a tailed file. It is never persisted.
type TailCursor struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
}

// StreamStats counts what happened to the lines of one stream.
type StreamStats struct {
	LinesRead     int64 `json:"lines_read"`
	LinesDropped  int64 `json:"lines_dropped"`
	PointsEmitted int64 `json:"points_emitted"`
	WriteFailures int64 `json:"write_failures"`
}

// StreamStatus is a point-in-time view of one stream, used by the status API.
type StreamStatus struct {
	Name   string      `json:"name"`
	State  StreamState `json:"state"`
	Cursor TailCursor  `json:"cursor"`
	Stats  StreamStats `json:"stats"`
	Error  string      `json:"error,omitempty"`
}
