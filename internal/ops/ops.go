// Package ops serves the operational HTTP surface: health, Prometheus
// metrics and a small authenticated admin API over the queue, the cache and
// broadcast.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mediafetch/botcore/internal/service"
)

// Config carries the ops server settings.
type Config struct {
	Port    int
	APIKeys []string
}

// Server is the ops HTTP server.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New builds the server and its routes.
func New(cfg Config, svc *service.Service, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, cfg.APIKeys, svc, logger)

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve ops: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func registerRoutes(router *gin.Engine, apiKeys []string, svc *service.Service, logger *zap.Logger) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "time": time.Now()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1", apiKeyAuth(apiKeys, logger))
	api.GET("/queue", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"jobs": svc.QueueSnapshot()})
	})
	api.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.CacheStats())
	})
	api.DELETE("/cache", func(c *gin.Context) {
		deleted, bytesFreed := svc.ClearCache()
		c.JSON(http.StatusOK, gin.H{"deleted": deleted, "bytes_freed": bytesFreed})
	})
	api.POST("/broadcast", func(c *gin.Context) {
		var req struct {
			Text string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		delivered := svc.Broadcast(c.Request.Context(), req.Text)
		c.JSON(http.StatusOK, gin.H{"delivered": delivered})
	})
}
