package model

import "time"

// ArchivedPoint is a metric point kept in the local archive together with
// its delivery outcome.
type ArchivedPoint struct {
	Stream      string            `json:"stream"`
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Fields      map[string]any    `json:"fields"`
	Timestamp   time.Time         `json:"timestamp"`
	Delivered   bool              `json:"delivered"`
	ArchivedAt  time.Time         `json:"archived_at"`
}

// DimensionCount is a value with its occurrence count.
type DimensionCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// DeliveryCount summarizes delivery outcomes of one stream and measurement.
type DeliveryCount struct {
	Stream      string `json:"stream"`
	Measurement string `json:"measurement"`
	Delivered   int64  `json:"delivered"`
	Dropped     int64  `json:"dropped"`
}
