package main

import (
	"time"

	"github.com/tinytelemetry/nginx-collector/internal/duckdb"
	"github.com/tinytelemetry/nginx-collector/internal/model"
)

const (
	defaultInfluxURL            = "http://influxdb:8086"
	defaultInfluxToken          = "my-super-secret-auth-token"
	defaultInfluxOrg            = "my-org"
	defaultInfluxBucket         = "api-metrics"
	defaultInfluxTimeout        = 10 * time.Second
	defaultAccessLogPath        = "/var/log/nginx/access.log"
	defaultErrorLogPath         = "/var/log/nginx/error.log"
	defaultFileWaitInterval     = model.FileWaitInterval
	defaultErrorLogTimezone     = "UTC"
	defaultLogLevel             = "info"
	defaultLogFormat            = "text"
	defaultAPIAddr              = "127.0.0.1:3000"
	defaultArchiveRetention     = 7 // days, 0 = keep forever
	defaultArchiveBatchSize     = duckdb.DefaultBatchSize
	defaultArchiveFlushInterval = duckdb.DefaultFlushInterval
)

// appConfig is internal runtime configuration.
type appConfig struct {
	InfluxURL     string        `mapstructure:"influxdb-url"`
	InfluxToken   string        `mapstructure:"influxdb-token"`
	InfluxOrg     string        `mapstructure:"influxdb-org"`
	InfluxBucket  string        `mapstructure:"influxdb-bucket"`
	InfluxTimeout time.Duration `mapstructure:"influxdb-timeout"`

	AccessLogPath    string        `mapstructure:"access-log-path"`
	ErrorLogPath     string        `mapstructure:"error-log-path"`
	FileWaitInterval time.Duration `mapstructure:"file-wait-interval"`
	ReplayOnStart    bool          `mapstructure:"replay-on-start"`
	ErrorLogTimezone string        `mapstructure:"error-log-timezone"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	APIEnabled bool   `mapstructure:"api-enabled"`
	APIAddr    string `mapstructure:"api-addr"`

	ArchivePath          string        `mapstructure:"archive-path"`
	ArchiveRetention     int           `mapstructure:"archive-retention"`
	ArchiveBatchSize     int           `mapstructure:"archive-batch-size"`
	ArchiveFlushInterval time.Duration `mapstructure:"archive-flush-interval"`

	ConfigPath       string         `mapstructure:"-"` // not from config file
	ErrorLogLocation *time.Location `mapstructure:"-"` // resolved from ErrorLogTimezone
}

func (c appConfig) replayLines() int {
	if c.ReplayOnStart {
		return model.ReplayLines
	}
	return 0
}
