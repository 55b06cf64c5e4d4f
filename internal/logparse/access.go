package logparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// accessPattern matches the collector's nginx log_format:
//
//	$remote_addr - $remote_user [$time_local] "$request" $status $body_bytes_sent
//	"$http_referer" "$http_user_agent" "$http_x_forwarded_for" rt=$request_time
//	uct="$upstream_connect_time" uht="$upstream_header_time" urt="$upstream_response_time"
//
// Only the start is anchored; trailing content after urt is accepted.
var accessPattern = namedRegexp{regexp.MustCompile(
	`^(?P<remote_addr>\S+) - (?P<remote_user>\S+) \[(?P<time_local>[^\]]+)\] ` +
		`"(?P<request>[^"]*)" (?P<status>\d+) (?P<body_bytes_sent>\d+) ` +
		`"(?P<http_referer>[^"]*)" "(?P<http_user_agent>[^"]*)" ` +
		`"(?P<http_x_forwarded_for>[^"]*)" rt=(?P<request_time>[\d.]+) ` +
		`uct="(?P<upstream_connect_time>[^"]*)" uht="(?P<upstream_header_time>[^"]*)" ` +
		`urt="(?P<upstream_response_time>[^"]*)"`,
)}

const (
	unknownMethod = "UNKNOWN"
	defaultPath   = "/"
)

// AccessParser parses nginx access log lines.
type AccessParser struct {
	nower Nower
}

// NewAccessParser returns an AccessParser stamping records with nower.
// A nil nower uses the wall clock.
func NewAccessParser(nower Nower) *AccessParser {
	if nower == nil {
		nower = RealNower{}
	}
	return &AccessParser{nower: nower}
}

// Parse implements Parser. The record timestamp is the ingestion time;
// the logged time_local is discarded.
func (p *AccessParser) Parse(line string) (model.AccessRecord, bool) {
	fields, ok := accessPattern.match(line)
	if !ok {
		return model.AccessRecord{}, false
	}

	status, err := strconv.Atoi(fields["status"])
	if err != nil {
		return model.AccessRecord{}, false
	}
	bodyBytes, err := strconv.ParseInt(fields["body_bytes_sent"], 10, 64)
	if err != nil {
		return model.AccessRecord{}, false
	}

	method, path := SplitRequest(fields["request"])

	return model.AccessRecord{
		Method:         method,
		Path:           path,
		StatusCode:     status,
		ResponseTimeMs: requestTimeMillis(fields["request_time"]),
		RemoteAddr:     fields["remote_addr"],
		BodyBytesSent:  bodyBytes,
		Timestamp:      p.nower.Now(),
	}, true
}

// SplitRequest decomposes a request line such as "GET /api/x HTTP/1.1".
// Fewer than two space-separated tokens yields ("UNKNOWN", "/").
func SplitRequest(request string) (method, path string) {
	parts := strings.Split(request, " ")
	if len(parts) >= 2 {
		return parts[0], parts[1]
	}
	return unknownMethod, defaultPath
}

// requestTimeMillis converts nginx's $request_time (seconds) to milliseconds.
// A malformed value such as "1.2.3" is reported as 0.
func requestTimeMillis(raw string) float64 {
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return seconds * 1000
}
