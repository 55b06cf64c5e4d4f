// Package httpserver serves the collector's status API.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
	defaultTopLimit    = 10
)

// StatusSource reports the state of every stream.
type StatusSource interface {
	Statuses() []model.StreamStatus
}

// ArchiveStore is the narrow archive contract required by the HTTP API.
type ArchiveStore interface {
	PointCount(measurement string) (int64, error)
	RecentPoints(limit int, measurement string) ([]model.ArchivedPoint, error)
	TopTagValues(tag string, limit int, measurement string) ([]model.DimensionCount, error)
	DeliveryCounts() ([]model.DeliveryCount, error)
	ExecuteQuery(query string) ([]map[string]any, error)
	SchemaDescription() string
}

// Config holds the collaborators of the status server.
type Config struct {
	Addr     string
	Streams  StatusSource
	Archive  ArchiveStore        // nil when the archive is disabled
	Gatherer prometheus.Gatherer // nil disables /metrics
	Logger   logrus.FieldLogger
}

// Server provides an HTTP API for collector status.
type Server struct {
	addr      string
	streams   StatusSource
	archive   ArchiveStore
	gatherer  prometheus.Gatherer
	logger    logrus.FieldLogger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new status API server.
func NewServer(cfg Config) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		streams:   cfg.Streams,
		archive:   cfg.Archive,
		gatherer:  cfg.Gatherer,
		logger:    logger.WithField("component", "httpserver"),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/streams", s.handleStreams)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	points := r.Group("/api/points", s.requireArchive)
	points.GET("/recent", s.handleRecentPoints)
	points.GET("/top", s.handleTopTags)
	points.GET("/delivery", s.handleDelivery)

	r.GET("/api/schema", s.requireArchive, s.handleSchema)
	r.POST("/api/query", s.requireArchive, s.handleQuery)

	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()
	s.logger.WithField("addr", listener.Addr().String()).Info("status API listening")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("status API stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) statuses() []model.StreamStatus {
	if s.streams == nil {
		return nil
	}
	return s.streams.Statuses()
}

func (s *Server) handleHealth(c *gin.Context) {
	statuses := s.statuses()

	status := "ok"
	code := http.StatusOK
	for _, st := range statuses {
		if st.State == model.StateFailed {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	body := gin.H{
		"status":  status,
		"uptime":  time.Since(s.startTime).String(),
		"streams": len(statuses),
	}
	if s.archive != nil {
		if count, err := s.archive.PointCount(""); err == nil {
			body["archived_points"] = count
		}
	}
	c.JSON(code, body)
}

func (s *Server) handleStreams(c *gin.Context) {
	statuses := s.statuses()
	if statuses == nil {
		statuses = []model.StreamStatus{}
	}
	c.JSON(http.StatusOK, statuses)
}

func (s *Server) requireArchive(c *gin.Context) {
	if s.archive == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "point archive is disabled"})
		return
	}
	c.Next()
}

// parseLimit reads the limit query parameter within [1, maxRecentLimit].
func parseLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxRecentLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 1000"})
		return 0, false
	}
	return limit, true
}

func (s *Server) handleRecentPoints(c *gin.Context) {
	limit, ok := parseLimit(c, defaultRecentLimit)
	if !ok {
		return
	}
	points, err := s.archive.RecentPoints(limit, c.Query("measurement"))
	if err != nil {
		s.logger.WithError(err).Error("read recent points")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read archived points"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"points": points,
		"count":  len(points),
	})
}

func (s *Server) handleTopTags(c *gin.Context) {
	tag := c.DefaultQuery("tag", "endpoint")
	limit, ok := parseLimit(c, defaultTopLimit)
	if !ok {
		return
	}
	values, err := s.archive.TopTagValues(tag, limit, c.Query("measurement"))
	if err != nil {
		s.logger.WithError(err).Error("read top tag values")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read tag values"})
		return
	}
	if values == nil {
		values = []model.DimensionCount{}
	}
	c.JSON(http.StatusOK, gin.H{
		"tag":    tag,
		"values": values,
	})
}

func (s *Server) handleDelivery(c *gin.Context) {
	counts, err := s.archive.DeliveryCounts()
	if err != nil {
		s.logger.WithError(err).Error("read delivery counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read delivery counts"})
		return
	}
	if counts == nil {
		counts = []model.DeliveryCount{}
	}
	c.JSON(http.StatusOK, counts)
}

func (s *Server) handleSchema(c *gin.Context) {
	rows, err := s.archive.ExecuteQuery(
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = 'points' ORDER BY ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	columns := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		columns = append(columns, gin.H{
			"column": row["column_name"],
			"type":   row["data_type"],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.archive.SchemaDescription(),
		"columns":     columns,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.archive.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
