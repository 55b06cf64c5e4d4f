package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

// DefaultPingTimeout bounds the startup liveness check.
const DefaultPingTimeout = 10 * time.Second

// Pinger is the sink liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SupervisorConfig holds the collaborators of a Supervisor.
type SupervisorConfig struct {
	Sink        Pinger
	Streams     []Runner
	PingTimeout time.Duration
	Logger      logrus.FieldLogger
}

// Supervisor runs every stream concurrently once the sink is reachable.
type Supervisor struct {
	sink        Pinger
	streams     []Runner
	pingTimeout time.Duration
	logger      logrus.FieldLogger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &Supervisor{
		sink:        cfg.Sink,
		streams:     cfg.Streams,
		pingTimeout: timeout,
		logger:      logger.WithField("component", "supervisor"),
	}
}

// Run checks the sink once, then runs all streams until ctx is cancelled and
// every stream has returned. A failing stream is logged and does not affect
// the others. The only error is a failed liveness check.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.streams) == 0 {
		return errors.New("no streams configured")
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	err := s.sink.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("sink liveness check failed: %w", err)
	}
	s.logger.Info("sink is reachable, starting streams")

	var g errgroup.Group
	for _, stream := range s.streams {
		g.Go(func() error {
			log := s.logger.WithField("stream", stream.Name())
			log.Info("stream started")
			if err := stream.Run(ctx); err != nil {
				log.WithError(err).Error("stream ended")
				return nil
			}
			log.Info("stream stopped")
			return nil
		})
	}

	<-ctx.Done()
	return g.Wait()
}

// Statuses reports every stream in configuration order.
func (s *Supervisor) Statuses() []model.StreamStatus {
	out := make([]model.StreamStatus, 0, len(s.streams))
	for _, stream := range s.streams {
		out = append(out, stream.Status())
	}
	return out
}
