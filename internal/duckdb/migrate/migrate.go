// Package migrate applies the archive's versioned schema to a DuckDB database.
package migrate

import (
	"database/sql"
	"fmt"
)

// Runner applies versioned SQL migrations to a DuckDB database.
type Runner struct {
	db         *sql.DB
	migrations []Migration
}

// Migration is one schema step. Versions are applied in ascending order.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations is the archive schema history.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "create_points",
		SQL: `CREATE TABLE IF NOT EXISTS points (
			stream      VARCHAR NOT NULL,
			measurement VARCHAR NOT NULL,
			tags        JSON,
			fields      JSON,
			timestamp   TIMESTAMP NOT NULL,
			delivered   BOOLEAN NOT NULL,
			archived_at TIMESTAMP DEFAULT current_timestamp
		)`,
	},
	{
		Version: 2,
		Name:    "index_points_timestamp",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_points_timestamp ON points (timestamp)`,
	},
	{
		Version: 3,
		Name:    "index_points_measurement",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_points_measurement ON points (measurement)`,
	},
}

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, migrations: Migrations}
}

func (r *Runner) bootstrap() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	return err
}

func (r *Runner) appliedVersion() (int, error) {
	var v sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// Run applies all pending migrations, each in its own transaction.
func (r *Runner) Run() error {
	if err := r.bootstrap(); err != nil {
		return fmt.Errorf("bootstrap schema_migrations: %w", err)
	}

	current, err := r.appliedVersion()
	if err != nil {
		return fmt.Errorf("reading applied version: %w", err)
	}

	for _, m := range r.migrations {
		if m.Version <= current {
			continue
		}
		if err := r.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) apply(m Migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx for %03d_%s: %w", m.Version, m.Name, err)
	}
	if _, err := tx.Exec(m.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("executing %03d_%s: %w", m.Version, m.Name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("recording %03d_%s: %w", m.Version, m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %03d_%s: %w", m.Version, m.Name, err)
	}
	return nil
}

// Status returns the applied version and the number of pending migrations.
func (r *Runner) Status() (current int, pending int, err error) {
	if err = r.bootstrap(); err != nil {
		return 0, 0, fmt.Errorf("bootstrap schema_migrations: %w", err)
	}
	current, err = r.appliedVersion()
	if err != nil {
		return 0, 0, fmt.Errorf("reading applied version: %w", err)
	}
	for _, m := range r.migrations {
		if m.Version > current {
			pending++
		}
	}
	return current, pending, nil
}
