// Package logsource reads raw log lines from growing files.
package logsource

// LogSource is a stream of raw log lines.
type LogSource interface {
	Lines() <-chan string // read-only channel of log lines
	Stop()                // graceful shutdown
	Name() string         // stream name, e.g. "access" or "error"
}
