// Package duckdb keeps a local archive of emitted metric points.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/nginx-collector/internal/duckdb/migrate"
)

// DefaultQueryTimeout bounds every archive query.
const DefaultQueryTimeout = 30 * time.Second

// StoreConfig holds the archive settings.
type StoreConfig struct {
	Path         string // empty for an in-memory database
	QueryTimeout time.Duration
	Logger       logrus.FieldLogger
}

// Store manages the DuckDB connection of the point archive.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	logger       logrus.FieldLogger
	QueryTimeout time.Duration
}

// NewStore opens or creates the archive database and applies migrations.
func NewStore(cfg StoreConfig) (*Store, error) {
	dsn := ""
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
		dsn = cfg.Path
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}

	qt := cfg.QueryTimeout
	if qt <= 0 {
		qt = DefaultQueryTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}

	return &Store{
		db:           db,
		dbPath:       cfg.Path,
		logger:       logger.WithField("component", "archive"),
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the configured path. Empty means in-memory.
func (s *Store) DBPath() string {
	return s.dbPath
}
