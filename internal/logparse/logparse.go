// Package logparse turns raw nginx log lines into structured records.
//
// Each parser matches a fixed grammar. A line that does not conform yields
// no record; parsers never return partial records and never panic.
package logparse

import (
	"regexp"
	"time"
)

// Parser converts one raw line into a record of type R.
// The boolean is false when the line does not match the grammar.
type Parser[R any] interface {
	Parse(line string) (R, bool)
}

// Nower supplies the current time. Parsers stamp records through it so
// tests can freeze the clock.
type Nower interface {
	Now() time.Time
}

// RealNower returns the wall clock in UTC.
type RealNower struct{}

func (RealNower) Now() time.Time {
	return time.Now().UTC()
}

// FixedNower always returns the same instant.
type FixedNower struct {
	T time.Time
}

func (f FixedNower) Now() time.Time {
	return f.T
}

// namedRegexp is a Regexp that returns named submatches as a map.
type namedRegexp struct {
	*regexp.Regexp
}

// match returns the named groups of the first match. Groups that did not
// participate are reported as absent, so optional clauses can be told apart
// from clauses that matched an empty string.
func (r namedRegexp) match(s string) (map[string]string, bool) {
	idx := r.FindStringSubmatchIndex(s)
	if idx == nil {
		return nil, false
	}
	captures := make(map[string]string)
	for i, name := range r.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		start, end := idx[2*i], idx[2*i+1]
		if start < 0 {
			continue
		}
		captures[name] = s[start:end]
	}
	return captures, true
}
