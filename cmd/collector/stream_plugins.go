package main

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/nginx-collector/internal/collector"
	"github.com/tinytelemetry/nginx-collector/internal/ingest"
	"github.com/tinytelemetry/nginx-collector/internal/logparse"
	"github.com/tinytelemetry/nginx-collector/internal/logsource"
	"github.com/tinytelemetry/nginx-collector/internal/metrics"
)

// StreamPlugin is a small plugin primitive for wiring log streams.
type StreamPlugin interface {
	Name() string
	Enabled() bool
	Build(deps streamDeps) collector.Runner
}

// streamDeps are the collaborators shared by every stream.
type streamDeps struct {
	Emitter ingest.PointEmitter
	Metrics *metrics.Collector
	Logger  logrus.FieldLogger
	Nower   logparse.Nower
}

// StreamPluginConfig defines runtime stream selection.
type StreamPluginConfig struct {
	AccessLogPath    string
	ErrorLogPath     string
	WaitInterval     time.Duration
	ReplayLines      int
	ErrorLogLocation *time.Location
}

func buildStreamPlugins(cfg StreamPluginConfig) []StreamPlugin {
	source := func(path string) logsource.FileConfig {
		return logsource.FileConfig{
			Path:         path,
			WaitInterval: cfg.WaitInterval,
			ReplayLines:  cfg.ReplayLines,
		}
	}
	return []StreamPlugin{
		accessStreamPlugin{source: source(cfg.AccessLogPath)},
		errorStreamPlugin{source: source(cfg.ErrorLogPath), loc: cfg.ErrorLogLocation},
	}
}

// buildStreams returns a runner for every enabled plugin.
func buildStreams(plugins []StreamPlugin, deps streamDeps) []collector.Runner {
	if deps.Nower == nil {
		deps.Nower = logparse.RealNower{}
	}
	runners := make([]collector.Runner, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		runners = append(runners, plugin.Build(deps))
	}
	return runners
}

type accessStreamPlugin struct {
	source logsource.FileConfig
}

func (p accessStreamPlugin) Name() string { return "access" }

func (p accessStreamPlugin) Enabled() bool { return p.source.Path != "" }

func (p accessStreamPlugin) Build(deps streamDeps) collector.Runner {
	processor := ingest.NewAccessProcessor(p.Name(), deps.Nower, deps.Emitter, deps.Metrics, deps.Logger)
	return collector.NewStream(p.source, processor, deps.Metrics, deps.Logger)
}

type errorStreamPlugin struct {
	source logsource.FileConfig
	loc    *time.Location
}

func (p errorStreamPlugin) Name() string { return "error" }

func (p errorStreamPlugin) Enabled() bool { return p.source.Path != "" }

func (p errorStreamPlugin) Build(deps streamDeps) collector.Runner {
	processor := ingest.NewErrorProcessor(p.Name(), deps.Nower, p.loc, deps.Emitter, deps.Metrics, deps.Logger)
	return collector.NewStream(p.source, processor, deps.Metrics, deps.Logger)
}
