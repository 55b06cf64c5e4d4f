package logparse

import (
	"regexp"
	"strings"
	"time"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// ErrorTimeLayout is the timestamp layout of nginx error log lines.
const ErrorTimeLayout = "2006/01/02 15:04:05"

// errorPattern matches nginx error log lines. The trailing clauses are
// optional and must appear in nginx's fixed order. A trailing referrer clause
// is consumed but not retained.
var errorPattern = namedRegexp{regexp.MustCompile(
	`^(?P<timestamp>\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}) ` +
		`\[(?P<level>\w+)\] (?P<pid>\d+)#(?P<tid>\d+): ` +
		`(?P<message>.*?)(?:, client: (?P<client>\S+))?` +
		`(?:, server: (?P<server>\S+))?` +
		`(?:, request: "(?P<request>[^"]*)")?` +
		`(?:, upstream: "(?P<upstream>[^"]*)")?` +
		`(?:, host: "(?P<host>[^"]*)")?` +
		`(?:, referrer: "[^"]*")?` +
		`\s*$`,
)}

// ErrorParser parses nginx error log lines.
type ErrorParser struct {
	nower    Nower
	location *time.Location
}

// NewErrorParser returns an ErrorParser. Logged timestamps carry no zone and
// are read in loc (UTC when nil). nower is the fallback for unparseable
// timestamps (wall clock when nil).
func NewErrorParser(nower Nower, loc *time.Location) *ErrorParser {
	if nower == nil {
		nower = RealNower{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ErrorParser{nower: nower, location: loc}
}

// Parse implements Parser.
func (p *ErrorParser) Parse(line string) (model.ErrorRecord, bool) {
	fields, ok := errorPattern.match(line)
	if !ok {
		return model.ErrorRecord{}, false
	}

	ts, err := time.ParseInLocation(ErrorTimeLayout, fields["timestamp"], p.location)
	if err != nil {
		ts = p.nower.Now()
	}

	return model.ErrorRecord{
		Timestamp: ts,
		Level:     fields["level"],
		Message:   fields["message"],
		ClientIP:  orUnknown(fields["client"]),
		Server:    orUnknown(fields["server"]),
		Request:   orUnknown(fields["request"]),
		Upstream:  orUnknown(fields["upstream"]),
		Host:      orUnknown(fields["host"]),
		Path:      requestPath(fields["request"]),
	}, true
}

// requestPath returns the second token of request, or Unknown.
func requestPath(request string) string {
	if request == "" {
		return model.Unknown
	}
	parts := strings.Split(request, " ")
	if len(parts) > 1 {
		return parts[1]
	}
	return model.Unknown
}

func orUnknown(v string) string {
	if v == "" {
		return model.Unknown
	}
	return v
}
