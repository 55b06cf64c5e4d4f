package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tinytelemetry/nginx-collector/internal/collector"
	"github.com/tinytelemetry/nginx-collector/internal/duckdb"
	"github.com/tinytelemetry/nginx-collector/internal/httpserver"
	"github.com/tinytelemetry/nginx-collector/internal/metrics"
	"github.com/tinytelemetry/nginx-collector/internal/sink"
)

// shutdownDeadline bounds graceful shutdown once the first signal arrives.
const shutdownDeadline = 10 * time.Second

// runCollector tails the configured nginx logs and writes metric points to
// InfluxDB until SIGINT or SIGTERM.
func runCollector(cfg appConfig) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	influx, err := sink.Connect(sink.InfluxConfig{
		URL:     cfg.InfluxURL,
		Token:   cfg.InfluxToken,
		Org:     cfg.InfluxOrg,
		Bucket:  cfg.InfluxBucket,
		Timeout: cfg.InfluxTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to configure InfluxDB client: %w", err)
	}
	defer influx.Close()

	// The archive is optional; keep the interfaces nil when it is off.
	var (
		archiver     sink.Archiver
		archiveStore httpserver.ArchiveStore
	)
	if cfg.ArchivePath != "" {
		store, err := duckdb.NewStore(duckdb.StoreConfig{Path: cfg.ArchivePath, Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to open point archive: %w", err)
		}
		defer store.Close()

		insertBuffer := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
			BatchSize:     cfg.ArchiveBatchSize,
			FlushInterval: cfg.ArchiveFlushInterval,
			Logger:        logger,
		})
		defer insertBuffer.Stop()

		retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
			RetentionDays: cfg.ArchiveRetention,
			Logger:        logger,
		})
		if retentionCleaner != nil {
			defer retentionCleaner.Stop()
		}

		archiver = insertBuffer
		archiveStore = store
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collectorMetrics := metrics.New(registry)

	writer := sink.NewWriter(influx, archiver, logger)

	plugins := buildStreamPlugins(StreamPluginConfig{
		AccessLogPath:    cfg.AccessLogPath,
		ErrorLogPath:     cfg.ErrorLogPath,
		WaitInterval:     cfg.FileWaitInterval,
		ReplayLines:      cfg.replayLines(),
		ErrorLogLocation: cfg.ErrorLogLocation,
	})
	streams := buildStreams(plugins, streamDeps{
		Emitter: writer,
		Metrics: collectorMetrics,
		Logger:  logger,
	})

	supervisor := collector.NewSupervisor(collector.SupervisorConfig{
		Sink:    influx,
		Streams: streams,
		Logger:  logger,
	})

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(httpserver.Config{
			Addr:     cfg.APIAddr,
			Streams:  supervisor,
			Archive:  archiveStore,
			Gatherer: registry,
			Logger:   logger,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		logger.Info("shutting down gracefully (signal again to force)")
		cancel()

		deadline := time.NewTimer(shutdownDeadline)
		defer deadline.Stop()

		select {
		case <-sigCh:
			logger.Warn("forced shutdown")
		case <-deadline.C:
			logger.Warn("shutdown timed out, forcing exit")
		}
		os.Exit(1)
	}()

	printStartupBanner(cfg, streams)

	if err := supervisor.Run(ctx); err != nil {
		return err
	}
	logger.Info("collector stopped")
	return nil
}

func printStartupBanner(cfg appConfig, streams []collector.Runner) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	enabled := func(label, value string) string {
		return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(value))
	}
	disabled := func(label string) string {
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
	}

	separator := dim.Render("    ─────────────────────────────────")

	lines := []string{
		"",
		cyan.Bold(true).Render("    nginx-collector"),
		"    " + dim.Render("v"+version+" ("+commit+", "+buildTime+")"),
		"",
		separator,
		"",
		bold.Render("    Streams"),
		"",
	}

	running := make(map[string]bool, len(streams))
	for _, s := range streams {
		running[s.Name()] = true
	}
	if running["access"] {
		lines = append(lines, enabled("Access log", cfg.AccessLogPath))
	} else {
		lines = append(lines, disabled("Access log"))
	}
	if running["error"] {
		lines = append(lines, enabled("Error log", cfg.ErrorLogPath))
	} else {
		lines = append(lines, disabled("Error log"))
	}

	lines = append(lines, "", bold.Render("    Sink"), "")
	lines = append(lines, enabled("InfluxDB", cfg.InfluxURL))
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Bucket", dim.Render(cfg.InfluxOrg+"/"+cfg.InfluxBucket)))

	lines = append(lines, "", bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, enabled("HTTP API", cfg.APIAddr))
	} else {
		lines = append(lines, disabled("HTTP API"))
	}
	if cfg.ArchivePath != "" {
		lines = append(lines, enabled("Archive", shortenPath(cfg.ArchivePath)))
	} else {
		lines = append(lines, disabled("Archive"))
	}

	lines = append(lines, "", bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("environment only")))
	}

	lines = append(lines,
		"",
		separator,
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)

	fmt.Fprintln(os.Stderr, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
