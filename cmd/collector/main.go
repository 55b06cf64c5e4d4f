package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// configEnv names the optional YAML config file.
const configEnv = "COLLECTOR_CONFIG"

func main() {
	cfg, err := loadConfig(os.Getenv(configEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runCollector(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
	v.AutomaticEnv()
	v.AllowEmptyEnv(true) // an empty log path disables its stream
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// The sink settings keep their unprefixed deployment names.
	for key, env := range map[string]string{
		"influxdb-url":    "INFLUXDB_URL",
		"influxdb-token":  "INFLUXDB_TOKEN",
		"influxdb-org":    "INFLUXDB_ORG",
		"influxdb-bucket": "INFLUXDB_BUCKET",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return cfg, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	v.SetDefault("influxdb-url", defaultInfluxURL)
	v.SetDefault("influxdb-token", defaultInfluxToken)
	v.SetDefault("influxdb-org", defaultInfluxOrg)
	v.SetDefault("influxdb-bucket", defaultInfluxBucket)
	v.SetDefault("influxdb-timeout", defaultInfluxTimeout)
	v.SetDefault("access-log-path", defaultAccessLogPath)
	v.SetDefault("error-log-path", defaultErrorLogPath)
	v.SetDefault("file-wait-interval", defaultFileWaitInterval)
	v.SetDefault("replay-on-start", false)
	v.SetDefault("error-log-timezone", defaultErrorLogTimezone)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-format", defaultLogFormat)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("archive-path", "")
	v.SetDefault("archive-retention", defaultArchiveRetention)
	v.SetDefault("archive-batch-size", defaultArchiveBatchSize)
	v.SetDefault("archive-flush-interval", defaultArchiveFlushInterval)

	configRead := false
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			configRead = true
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if configRead {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if cfg.AccessLogPath == "" && cfg.ErrorLogPath == "" {
		return cfg, fmt.Errorf("no streams enabled: set access-log-path or error-log-path")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("invalid log-level: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return cfg, fmt.Errorf("invalid log-format: %q (want text or json)", cfg.LogFormat)
	}
	if cfg.FileWaitInterval <= 0 {
		return cfg, fmt.Errorf("invalid file-wait-interval: %s", cfg.FileWaitInterval)
	}
	if cfg.ArchiveRetention < 0 {
		return cfg, fmt.Errorf("invalid archive-retention: %d", cfg.ArchiveRetention)
	}
	if cfg.ArchiveBatchSize <= 0 {
		return cfg, fmt.Errorf("invalid archive-batch-size: %d", cfg.ArchiveBatchSize)
	}

	loc, err := time.LoadLocation(cfg.ErrorLogTimezone)
	if err != nil {
		return cfg, fmt.Errorf("invalid error-log-timezone: %w", err)
	}
	cfg.ErrorLogLocation = loc

	return cfg, nil
}

// newLogger builds the process logger from the log-level and log-format keys.
func newLogger(cfg appConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
