package duckdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// MaxQueryRows caps the rows returned by ExecuteQuery.
const MaxQueryRows = 1000

// dangerousKeywordPattern matches write or admin SQL keywords at word boundaries.
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET)\b`,
)

// fileAccessPattern matches table functions and quoted table references
// that read files from the local filesystem.
var fileAccessPattern = regexp.MustCompile(
	`(?i)\b(read_\w+|glob|sniff_csv|parquet_\w+|\w+_scan)\s*\(|\b(FROM|JOIN)\s+['"]`,
)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments from a query.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// measurementFilter returns a WHERE clause and args when measurement is non-empty.
func measurementFilter(measurement string) (clause string, args []any) {
	if measurement != "" {
		return "WHERE measurement = ?", []any{measurement}
	}
	return "", nil
}

// PointCount returns the number of archived points, optionally for one measurement.
func (s *Store) PointCount(measurement string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := measurementFilter(measurement)
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM points %s`, where), args...).Scan(&count)
	return count, err
}

// RecentPoints returns the newest archived points, newest first.
func (s *Store) RecentPoints(limit int, measurement string) ([]model.ArchivedPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, args := measurementFilter(measurement)
	query := fmt.Sprintf(`
		SELECT stream, measurement, CAST(tags AS VARCHAR), CAST(fields AS VARCHAR), timestamp, delivered, archived_at
		FROM points %s
		ORDER BY timestamp DESC, archived_at DESC
		LIMIT ?`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]model.ArchivedPoint, 0, limit)
	for rows.Next() {
		var p model.ArchivedPoint
		var tagsJSON, fieldsJSON string
		if err := rows.Scan(&p.Stream, &p.Measurement, &tagsJSON, &fieldsJSON, &p.Timestamp, &p.Delivered, &p.ArchivedAt); err != nil {
			s.logger.WithError(err).Warn("scan error (RecentPoints)")
			continue
		}
		p.Tags = make(map[string]string)
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			s.logger.WithError(err).Warn("decode archived tags")
		}
		p.Fields = decodeFields(fieldsJSON)
		results = append(results, p)
	}
	return results, rows.Err()
}

// decodeFields keeps integer fields exact by decoding numbers as json.Number.
func decodeFields(raw string) map[string]any {
	fields := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	_ = dec.Decode(&fields)
	return fields
}

// TopTagValues returns the most frequent values of one tag.
func (s *Store) TopTagValues(tag string, limit int, measurement string) ([]model.DimensionCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	where, wArgs := measurementFilter(measurement)
	query := fmt.Sprintf(`
		SELECT COALESCE(json_extract_string(tags, '$.' || ?), 'unknown') AS value, COUNT(*) AS count
		FROM points %s
		GROUP BY value
		ORDER BY count DESC, value ASC
		LIMIT ?`, where)

	args := append([]any{tag}, wArgs...)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.DimensionCount
	for rows.Next() {
		var item model.DimensionCount
		if err := rows.Scan(&item.Value, &item.Count); err != nil {
			s.logger.WithError(err).Warn("scan error (TopTagValues)")
			continue
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// DeliveryCounts returns delivered and dropped totals per stream and measurement.
func (s *Store) DeliveryCounts() ([]model.DeliveryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT stream, measurement,
			COUNT(*) FILTER (WHERE delivered) AS delivered,
			COUNT(*) FILTER (WHERE NOT delivered) AS dropped
		FROM points
		GROUP BY stream, measurement
		ORDER BY stream, measurement`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.DeliveryCount
	for rows.Next() {
		var item model.DeliveryCount
		if err := rows.Scan(&item.Stream, &item.Measurement, &item.Delivered, &item.Dropped); err != nil {
			s.logger.WithError(err).Warn("scan error (DeliveryCounts)")
			continue
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// DeleteBefore removes points whose timestamp is older than cutoff and
// returns the number of deleted rows.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM points WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecuteQuery runs a read-only SQL query and returns results as maps.
// Only SELECT/WITH queries are allowed; DDL/DML is rejected.
func (s *Store) ExecuteQuery(query string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(query)

	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}
	if fileAccessPattern.MatchString(stripped) {
		return nil, fmt.Errorf("query must not read local files")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() && len(results) < MaxQueryRows {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.logger.WithError(err).Warn("scan error (ExecuteQuery)")
			continue
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// SchemaDescription returns a short description of the archive table.
func (s *Store) SchemaDescription() string {
	return `Table 'points': stream (VARCHAR: access/error), measurement (VARCHAR: api_requests/api_errors), ` +
		`tags (JSON), fields (JSON), timestamp (TIMESTAMP), delivered (BOOLEAN), archived_at (TIMESTAMP).`
}
