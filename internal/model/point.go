package model

import "time"

// Tag is one indexed dimension of a MetricPoint.
type Tag struct {
	Key   string
	Value string
}

// MetricPoint is a sink-ready time-series point.
// Tags keep insertion order; Fields hold float64, int64 or string values.
type MetricPoint struct {
	Measurement string
	Tags        []Tag
	Fields      map[string]any
	Timestamp   time.Time
}

// Tag returns the value of the named tag and whether it is present.
func (p MetricPoint) Tag(key string) (string, bool) {
	for _, t := range p.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Field returns the value of the named field and whether it is present.
func (p MetricPoint) Field(key string) (any, bool) {
	v, ok := p.Fields[key]
	return v, ok
}

// TagMap returns the tags as a map, for sinks that do not care about order.
func (p MetricPoint) TagMap() map[string]string {
	m := make(map[string]string, len(p.Tags))
	for _, t := range p.Tags {
		m[t.Key] = t.Value
	}
	return m
}
