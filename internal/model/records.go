package model

import "time"

// AccessRecord is the structured form of one nginx access log line.
type AccessRecord struct {
	Method         string
	Path           string
	StatusCode     int
	ResponseTimeMs float64
	RemoteAddr     string
	BodyBytesSent  int64
	Timestamp      time.Time // ingestion time, not the logged time_local
}

// ErrorRecord is the structured form of one nginx error log line.
// Optional clauses missing from the line hold Unknown.
type ErrorRecord struct {
	Timestamp time.Time
	Level     string
	Message   string
	ClientIP  string
	Server    string
	Request   string
	Upstream  string
	Host      string
	Path      string
}
