package logparse

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 10, 10, 13, 55, 40, 0, time.UTC)

const healthLine = `203.0.113.5 - - [10/Oct/2024:13:55:36 +0000] "GET /health HTTP/1.1" 200 15 "-" "curl/8.0" "-" rt=0.003 uct="-" uht="-" urt="-"`

func TestAccessParser_Parse(t *testing.T) {
	t.Parallel()

	p := NewAccessParser(FixedNower{T: fixedNow})

	tests := []struct {
		name       string
		line       string
		wantMethod string
		wantPath   string
		wantStatus int
		wantMs     float64
		wantBytes  int64
		wantAddr   string
	}{
		{
			name:       "health check",
			line:       healthLine,
			wantMethod: "GET",
			wantPath:   "/health",
			wantStatus: 200,
			wantMs:     3,
			wantBytes:  15,
			wantAddr:   "203.0.113.5",
		},
		{
			name:       "post with upstream timings and forwarded-for",
			line:       `10.0.0.7 - alice [10/Oct/2024:13:55:37 +0000] "POST /api/users HTTP/1.1" 201 48 "http://example.com/" "Mozilla/5.0 (X11)" "198.51.100.2" rt=0.104 uct="0.000" uht="0.101" urt="0.101"`,
			wantMethod: "POST",
			wantPath:   "/api/users",
			wantStatus: 201,
			wantMs:     104,
			wantBytes:  48,
			wantAddr:   "10.0.0.7",
		},
		{
			name:       "single token request",
			line:       `10.0.0.8 - - [10/Oct/2024:13:55:38 +0000] "GARBAGE" 400 0 "-" "-" "-" rt=0.000 uct="-" uht="-" urt="-"`,
			wantMethod: "UNKNOWN",
			wantPath:   "/",
			wantStatus: 400,
			wantMs:     0,
			wantBytes:  0,
			wantAddr:   "10.0.0.8",
		},
		{
			name:       "empty request",
			line:       `10.0.0.9 - - [10/Oct/2024:13:55:38 +0000] "" 400 0 "-" "-" "-" rt=0.001 uct="-" uht="-" urt="-"`,
			wantMethod: "UNKNOWN",
			wantPath:   "/",
			wantStatus: 400,
			wantMs:     1,
			wantBytes:  0,
			wantAddr:   "10.0.0.9",
		},
		{
			name:       "malformed request time defaults to zero",
			line:       `10.0.0.10 - - [10/Oct/2024:13:55:39 +0000] "GET /api/slow HTTP/1.1" 200 52 "-" "-" "-" rt=1.2.3 uct="-" uht="-" urt="-"`,
			wantMethod: "GET",
			wantPath:   "/api/slow",
			wantStatus: 200,
			wantMs:     0,
			wantBytes:  52,
			wantAddr:   "10.0.0.10",
		},
		{
			name:       "trailing content is accepted",
			line:       healthLine + ` extra=1`,
			wantMethod: "GET",
			wantPath:   "/health",
			wantStatus: 200,
			wantMs:     3,
			wantBytes:  15,
			wantAddr:   "203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := p.Parse(tt.line)
			if !ok {
				t.Fatalf("Parse(%q) reported no match", tt.line)
			}
			if rec.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", rec.Method, tt.wantMethod)
			}
			if rec.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", rec.Path, tt.wantPath)
			}
			if rec.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", rec.StatusCode, tt.wantStatus)
			}
			if !closeTo(rec.ResponseTimeMs, tt.wantMs) {
				t.Errorf("ResponseTimeMs = %v, want %v", rec.ResponseTimeMs, tt.wantMs)
			}
			if rec.BodyBytesSent != tt.wantBytes {
				t.Errorf("BodyBytesSent = %d, want %d", rec.BodyBytesSent, tt.wantBytes)
			}
			if rec.RemoteAddr != tt.wantAddr {
				t.Errorf("RemoteAddr = %q, want %q", rec.RemoteAddr, tt.wantAddr)
			}
			if !rec.Timestamp.Equal(fixedNow) {
				t.Errorf("Timestamp = %v, want ingestion time %v", rec.Timestamp, fixedNow)
			}
		})
	}
}

func TestAccessParser_NoMatch(t *testing.T) {
	t.Parallel()

	p := NewAccessParser(FixedNower{T: fixedNow})

	lines := []string{
		"",
		"hello world",
		// status is not numeric
		`203.0.113.5 - - [10/Oct/2024:13:55:36 +0000] "GET / HTTP/1.1" abc 15 "-" "curl/8.0" "-" rt=0.003 uct="-" uht="-" urt="-"`,
		// unterminated quote
		`203.0.113.5 - - [10/Oct/2024:13:55:36 +0000] "GET / HTTP/1.1 200 15 "-" "curl/8.0" "-" rt=0.003 uct="-" uht="-" urt="-"`,
		// default combined format without the timing suffix
		`203.0.113.5 - - [10/Oct/2024:13:55:36 +0000] "GET / HTTP/1.1" 200 15 "-" "curl/8.0"`,
		// missing rt token
		`203.0.113.5 - - [10/Oct/2024:13:55:36 +0000] "GET / HTTP/1.1" 200 15 "-" "curl/8.0" "-" uct="-" uht="-" urt="-"`,
		// status overflows int
		`203.0.113.5 - - [10/Oct/2024:13:55:36 +0000] "GET / HTTP/1.1" 99999999999999999999999 15 "-" "curl/8.0" "-" rt=0.003 uct="-" uht="-" urt="-"`,
		// leading garbage
		`xx ` + healthLine[:20],
	}

	for _, line := range lines {
		rec, ok := p.Parse(line)
		if ok {
			t.Errorf("Parse(%q) = %+v, want no match", line, rec)
		}
	}
}

func TestAccessParser_Idempotent(t *testing.T) {
	t.Parallel()

	p := NewAccessParser(FixedNower{T: fixedNow})

	first, ok := p.Parse(healthLine)
	if !ok {
		t.Fatal("expected match")
	}
	second, ok := p.Parse(healthLine)
	if !ok {
		t.Fatal("expected match")
	}
	if first != second {
		t.Fatalf("records differ:\n%+v\n%+v", first, second)
	}
}

func TestAccessParser_DefaultClockIsUTC(t *testing.T) {
	t.Parallel()

	rec, ok := NewAccessParser(nil).Parse(healthLine)
	if !ok {
		t.Fatal("expected match")
	}
	if rec.Timestamp.Location() != time.UTC {
		t.Fatalf("Timestamp location = %v, want UTC", rec.Timestamp.Location())
	}
	if time.Since(rec.Timestamp) > time.Minute {
		t.Fatalf("Timestamp %v is not the ingestion time", rec.Timestamp)
	}
}

func TestSplitRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		request    string
		wantMethod string
		wantPath   string
	}{
		{"GET /api/x HTTP/1.1", "GET", "/api/x"},
		{"GET /api/x", "GET", "/api/x"},
		{"GET", "UNKNOWN", "/"},
		{"", "UNKNOWN", "/"},
		{"GET  /double-space HTTP/1.1", "GET", ""},
	}

	for _, tt := range tests {
		method, path := SplitRequest(tt.request)
		if method != tt.wantMethod || path != tt.wantPath {
			t.Errorf("SplitRequest(%q) = (%q, %q), want (%q, %q)",
				tt.request, method, path, tt.wantMethod, tt.wantPath)
		}
	}
}

func closeTo(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
