// Package server exposes an anomaly scorer over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hed1ad/anomalyscore/pkg/detectors"
	"github.com/hed1ad/anomalyscore/pkg/fields"
)

// Scorer is the part of a detector the server needs.
type Scorer interface {
	Score(input detectors.Record) (float64, error)
	Threshold() float64
	ID() string
}

// Server serves a single detector over HTTP.
type Server struct {
	scorer   Scorer
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	engine   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer exposes the metrics of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New returns a Server scoring records with scorer.
func New(scorer Scorer, opts ...Option) *Server {
	s := &Server{
		scorer: scorer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", s.health)
	r.POST("/score", s.score)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr), zap.String("detector", s.scorer.ID()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Detector string `json:"detector"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Detector: s.scorer.ID()})
}

type scoreReq struct {
	Input  detectors.Record   `json:"input"`
	Inputs []detectors.Record `json:"inputs"`
}

// ScoreResult is the score of one record posted to /score.
type ScoreResult struct {
	Score     float64 `json:"score"`
	IsAnomaly bool    `json:"is_anomaly"`
}

func (s *Server) score(c *gin.Context) {
	var req scoreReq
	if err := c.ShouldBindJSON(&req); err != nil || (req.Input == nil && req.Inputs == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	if req.Inputs == nil {
		res, err := s.scoreOne(req.Input)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "score": res.Score, "is_anomaly": res.IsAnomaly})
		return
	}

	results := make([]ScoreResult, len(req.Inputs))
	for i, input := range req.Inputs {
		res, err := s.scoreOne(input)
		if err != nil {
			s.fail(c, err, zap.Int("index", i))
			return
		}
		results[i] = res
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "scores": results})
}

func (s *Server) scoreOne(input detectors.Record) (ScoreResult, error) {
	value, err := s.scorer.Score(input)
	if err != nil {
		return ScoreResult{}, err
	}
	return ScoreResult{Score: value, IsAnomaly: value >= s.scorer.Threshold()}, nil
}

func (s *Server) fail(c *gin.Context, err error, extra ...zap.Field) {
	var castErr *fields.CastError
	if errors.As(err, &castErr) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error(), "field": castErr.Field})
		return
	}
	s.logger.Error("scoring failed", append(extra, zap.Error(err))...)
	c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
}

func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
