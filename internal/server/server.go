// Package server exposes training and prediction over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KaramelBytes/healthrisk-cli/internal/cache"
	"github.com/KaramelBytes/healthrisk-cli/internal/dataset"
	"github.com/KaramelBytes/healthrisk-cli/internal/model"
)

// MaxUploadBytes bounds a dataset upload.
const MaxUploadBytes = 32 << 20

// Server serves one artifact cache. Bundles are immutable, so handlers share them without locking.
type Server struct {
	cache   *cache.Artifacts
	dataOpt dataset.Options
	trainer *model.Trainer
	trainOp model.Options
	log     *zap.Logger
	router  *gin.Engine
}

// New builds the router. A nil logger discards output.
func New(c *cache.Artifacts, dataOpt dataset.Options, trainOpt model.Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cache:   c,
		dataOpt: dataOpt,
		trainer: model.NewTrainer(trainOpt, log),
		trainOp: trainOpt,
		log:     log,
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "datasets": s.cache.Len()})
	})
	s.registerRoutes(router)
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Key returns the cache key this server uses for a raw table. The same bytes decoded
// with another delimiter are a different dataset.
func (s *Server) Key(raw *dataset.RawTable) string {
	return cache.Key(raw.Hash, raw.Delimiter, s.dataOpt, s.trainOp)
}

// Train normalizes and trains a raw table through the cache.
func (s *Server) Train(ctx context.Context, raw *dataset.RawTable) (string, *model.Bundle, error) {
	key := s.Key(raw)
	b, err := s.cache.GetOrTrain(ctx, key, func() (*model.Bundle, error) {
		tab, err := dataset.Normalize(raw, s.dataOpt)
		if err != nil {
			return nil, err
		}
		return s.trainer.Train(tab)
	})
	return key, b, err
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
