// Package httpapi exposes the screening service over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spigell/resume-screener/internal/extract"
	"github.com/spigell/resume-screener/internal/queue"
	"github.com/spigell/resume-screener/internal/screening"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultRequestsPerMinute is the per-IP budget of the evaluation endpoints.
const DefaultRequestsPerMinute = 30

// Enqueuer hands evaluation requests to background workers.
type Enqueuer interface {
	Publish(ctx context.Context, req queue.Request) error
}

// Config tunes the transport.
type Config struct {
	RequestsPerMinute int
	MaxUploadSize     int64
}

// Server routes HTTP requests to the screening service.
type Server struct {
	svc       *screening.Service
	extractor *extract.Extractor
	enqueuer  Enqueuer
	limiter   *ipLimiter
	cfg       Config
	logger    *zap.Logger
	engine    *gin.Engine
}

// New builds the router. enqueuer may be nil, in which case queued
// evaluation is reported as unavailable.
func New(svc *screening.Service, extractor *extract.Extractor, enqueuer Enqueuer, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = extract.MaxUploadSize
	}
	if extractor == nil {
		extractor = extract.New(log)
	}

	s := &Server{
		svc:       svc,
		extractor: extractor,
		enqueuer:  enqueuer,
		limiter:   newIPLimiter(cfg.RequestsPerMinute),
		cfg:       cfg,
		logger:    log,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the http.Handler serving every route.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(s.logger), gin.CustomRecovery(s.recover))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api", identity())

	evaluate := api.Group("/evaluate")
	evaluate.POST("", s.limiter.middleware(), s.evaluateOne)
	evaluate.POST("/batch", s.limiter.middleware(), s.evaluateBatch)
	evaluate.POST("/queue", s.limiter.middleware(), s.enqueueBatch)
	evaluate.GET("", s.listEvaluations)
	evaluate.GET("/:id", s.getEvaluation)
	evaluate.PATCH("/:id", s.patchEvaluation)

	api.GET("/audit", s.listAudit)

	api.GET("/jobs", s.listJobs)
	api.POST("/jobs", s.createJob)
	api.GET("/jobs/:id", s.getJob)

	api.GET("/resumes", s.listResumes)
	api.POST("/resumes", s.uploadResume)

	return r
}

func (s *Server) recover(c *gin.Context, recovered any) {
	s.logger.Error("panic while serving request", zap.Any("panic", recovered), zap.String("path", c.FullPath()))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
