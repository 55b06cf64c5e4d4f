package duckdb

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func accessPoint(endpoint string, ts time.Time, delivered bool) model.ArchivedPoint {
	return model.ArchivedPoint{
		Stream:      "access",
		Measurement: model.MeasurementRequests,
		Tags:        map[string]string{"method": "GET", "endpoint": endpoint, "status_code": "200"},
		Fields:      map[string]any{"response_time": 3.0, "request_count": int64(1), "body_bytes_sent": int64(15)},
		Timestamp:   ts,
		Delivered:   delivered,
	}
}

func errorPoint(ts time.Time) model.ArchivedPoint {
	return model.ArchivedPoint{
		Stream:      "error",
		Measurement: model.MeasurementErrors,
		Tags:        map[string]string{"level": "error", "endpoint": "unknown"},
		Fields:      map[string]any{"error_count": int64(1), "message": "something broke"},
		Timestamp:   ts,
		Delivered:   true,
	}
}

func insertTestPoints(t *testing.T, store *Store, points ...model.ArchivedPoint) {
	t.Helper()
	if err := store.InsertPoints(points); err != nil {
		t.Fatalf("InsertPoints failed: %v", err)
	}
}

func TestNewStore_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "archive.duckdb")
	store, err := NewStore(StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("NewStore(%q) failed: %v", path, err)
	}
	defer store.Close()

	if store.DBPath() != path {
		t.Fatalf("DBPath() = %q, want %q", store.DBPath(), path)
	}
	insertTestPoints(t, store, accessPoint("/health", time.Now(), true))
	count, err := store.PointCount("")
	if err != nil || count != 1 {
		t.Fatalf("PointCount = %d, %v; want 1", count, err)
	}
}

func TestPointCount(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	insertTestPoints(t, store,
		accessPoint("/a", now, true),
		accessPoint("/b", now, false),
		errorPoint(now),
	)

	tests := []struct {
		measurement string
		want        int64
	}{
		{"", 3},
		{model.MeasurementRequests, 2},
		{model.MeasurementErrors, 1},
		{"missing", 0},
	}
	for _, tt := range tests {
		got, err := store.PointCount(tt.measurement)
		if err != nil {
			t.Fatalf("PointCount(%q): %v", tt.measurement, err)
		}
		if got != tt.want {
			t.Errorf("PointCount(%q) = %d, want %d", tt.measurement, got, tt.want)
		}
	}
}

func TestRecentPoints(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 10, 10, 13, 0, 0, 0, time.UTC)

	insertTestPoints(t, store,
		accessPoint("/old", base, true),
		accessPoint("/mid", base.Add(time.Minute), false),
		errorPoint(base.Add(2*time.Minute)),
		accessPoint("/new", base.Add(3*time.Minute), true),
	)

	points, err := store.RecentPoints(2, model.MeasurementRequests)
	if err != nil {
		t.Fatalf("RecentPoints: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("RecentPoints returned %d points, want 2", len(points))
	}
	if points[0].Tags["endpoint"] != "/new" || points[1].Tags["endpoint"] != "/mid" {
		t.Fatalf("unexpected order: %q, %q", points[0].Tags["endpoint"], points[1].Tags["endpoint"])
	}
	if points[1].Delivered {
		t.Fatal("expected /mid to be recorded as undelivered")
	}
	if !points[0].Timestamp.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("timestamp = %v, want %v", points[0].Timestamp, base.Add(3*time.Minute))
	}
	if n, ok := points[0].Fields["request_count"].(json.Number); !ok || n.String() != "1" {
		t.Fatalf("request_count = %#v, want json.Number 1", points[0].Fields["request_count"])
	}

	all, err := store.RecentPoints(10, "")
	if err != nil {
		t.Fatalf("RecentPoints(all): %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("RecentPoints(all) returned %d points, want 4", len(all))
	}
	if all[1].Stream != "error" || all[1].Fields["message"] != "something broke" {
		t.Fatalf("unexpected error point: %+v", all[1])
	}
}

func TestTopTagValues(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	insertTestPoints(t, store,
		accessPoint("/health", now, true),
		accessPoint("/health", now, true),
		accessPoint("/api/users", now, true),
		errorPoint(now),
	)

	top, err := store.TopTagValues("endpoint", 5, model.MeasurementRequests)
	if err != nil {
		t.Fatalf("TopTagValues: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("TopTagValues returned %d values, want 2: %+v", len(top), top)
	}
	if top[0].Value != "/health" || top[0].Count != 2 {
		t.Fatalf("top[0] = %+v, want /health x2", top[0])
	}
}

func TestDeliveryCounts(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	insertTestPoints(t, store,
		accessPoint("/a", now, true),
		accessPoint("/b", now, false),
		accessPoint("/c", now, false),
		errorPoint(now),
	)

	counts, err := store.DeliveryCounts()
	if err != nil {
		t.Fatalf("DeliveryCounts: %v", err)
	}
	want := []model.DeliveryCount{
		{Stream: "access", Measurement: model.MeasurementRequests, Delivered: 1, Dropped: 2},
		{Stream: "error", Measurement: model.MeasurementErrors, Delivered: 1, Dropped: 0},
	}
	if len(counts) != len(want) {
		t.Fatalf("DeliveryCounts = %+v, want %+v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("counts[%d] = %+v, want %+v", i, counts[i], want[i])
		}
	}
}

func TestDeleteBefore(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	insertTestPoints(t, store,
		accessPoint("/old", now.Add(-48*time.Hour), true),
		accessPoint("/new", now, true),
	)

	deleted, err := store.DeleteBefore(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	count, _ := store.PointCount("")
	if count != 1 {
		t.Fatalf("remaining = %d, want 1", count)
	}
}

func TestExecuteQuery(t *testing.T) {
	store := newTestStore(t)
	insertTestPoints(t, store, accessPoint("/a", time.Now(), true), errorPoint(time.Now()))

	rows, err := store.ExecuteQuery("SELECT measurement, COUNT(*) AS n FROM points GROUP BY measurement ORDER BY measurement")
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	if len(rows) != 2 || rows[0]["measurement"] != model.MeasurementErrors {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestExecuteQuery_RejectsWrites(t *testing.T) {
	store := newTestStore(t)

	for _, q := range []string{
		"DELETE FROM points",
		"SELECT 1; DROP TABLE points",
		"WITH x AS (SELECT 1) INSERT INTO points SELECT * FROM x",
		"/* SELECT */ DROP TABLE points",
		"PRAGMA database_list",
	} {
		if _, err := store.ExecuteQuery(q); err == nil {
			t.Errorf("ExecuteQuery(%q) should be rejected", q)
		}
	}
}

func TestExecuteQuery_RejectsFileAccess(t *testing.T) {
	store := newTestStore(t)

	for _, q := range []string{
		"SELECT * FROM read_text('/etc/passwd')",
		"SELECT * FROM READ_CSV_AUTO ('/etc/hosts')",
		"SELECT * FROM glob('/etc/*')",
		"SELECT * FROM parquet_metadata('x.parquet')",
		"SELECT * FROM sqlite_scan('x.db', 't')",
		"SELECT * FROM '/etc/passwd.csv'",
		"SELECT p.* FROM points p JOIN \"/tmp/x.json\" j ON true",
	} {
		if _, err := store.ExecuteQuery(q); err == nil {
			t.Errorf("ExecuteQuery(%q) should be rejected", q)
		}
	}

	// Column names that merely contain the words stay allowed.
	if _, err := store.ExecuteQuery("SELECT stream AS read_by FROM points"); err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
}
