package main

import (
	"context"
	"testing"
	"time"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

type discardEmitter struct{}

func (discardEmitter) Emit(context.Context, string, model.MetricPoint) bool { return true }

func TestBuildStreamPlugins_RegistersBothStreams(t *testing.T) {
	t.Parallel()

	plugins := buildStreamPlugins(StreamPluginConfig{
		AccessLogPath: "/var/log/nginx/access.log",
		ErrorLogPath:  "/var/log/nginx/error.log",
		WaitInterval:  time.Second,
	})

	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Name() != "access" {
		t.Fatalf("plugins[0] name = %q, want %q", plugins[0].Name(), "access")
	}
	if plugins[1].Name() != "error" {
		t.Fatalf("plugins[1] name = %q, want %q", plugins[1].Name(), "error")
	}
	for _, p := range plugins {
		if !p.Enabled() {
			t.Fatalf("expected %s plugin to be enabled", p.Name())
		}
	}
}

func TestBuildStreamPlugins_EmptyPathDisables(t *testing.T) {
	t.Parallel()

	plugins := buildStreamPlugins(StreamPluginConfig{
		AccessLogPath: "/var/log/nginx/access.log",
	})

	if plugins[1].Enabled() {
		t.Fatal("expected error plugin to be disabled without a path")
	}

	streams := buildStreams(plugins, streamDeps{Emitter: discardEmitter{}})
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	if streams[0].Name() != "access" {
		t.Fatalf("stream name = %q, want access", streams[0].Name())
	}
}

func TestBuildStreams_InitialStatus(t *testing.T) {
	t.Parallel()

	plugins := buildStreamPlugins(StreamPluginConfig{
		AccessLogPath: "/srv/access.log",
		ErrorLogPath:  "/srv/error.log",
	})
	streams := buildStreams(plugins, streamDeps{Emitter: discardEmitter{}})
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}

	want := map[string]string{"access": "/srv/access.log", "error": "/srv/error.log"}
	for _, s := range streams {
		st := s.Status()
		if st.State != model.StateAwaiting {
			t.Errorf("%s state = %s, want awaiting", s.Name(), st.State)
		}
		if st.Cursor.Path != want[s.Name()] {
			t.Errorf("%s path = %q, want %q", s.Name(), st.Cursor.Path, want[s.Name()])
		}
	}
}
