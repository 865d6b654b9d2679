package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/internal/pipeline"
)

// Runner is the pipeline surface the HTTP API drives.
type Runner interface {
	Run(ctx context.Context, ov pipeline.Overrides) (domain.Result, error)
	Publish(ctx context.Context, result domain.Result) error
	ClearCache() (bool, error)
}

// Server exposes scrape runs over HTTP. Only one run executes at a time.
type Server struct {
	runner Runner
	log    logger.Logger
	mu     sync.Mutex
}

func NewServer(runner Runner, log logger.Logger) *Server {
	return &Server{runner: runner, log: logger.Ensure(log)}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.POST("/scrape", s.scrape)
		api.DELETE("/cache", s.clearCache)
	}
}

// Router builds a gin engine with the API routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.RegisterRoutes(r)
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) scrape(c *gin.Context) {
	var ov pipeline.Overrides
	if err := c.ShouldBindJSON(&ov); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_request",
			"message": err.Error(),
		})
		return
	}
	publish, _ := strconv.ParseBool(c.DefaultQuery("publish", "false"))

	if !s.mu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "busy",
			"message": "a scrape is already running",
		})
		return
	}
	defer s.mu.Unlock()

	ctx := c.Request.Context()
	result, err := s.runner.Run(ctx, ov)
	if err != nil {
		s.log.ErrorObj("scrape run failed", "api_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}

	if publish {
		if err := s.runner.Publish(ctx, result); err != nil {
			s.log.WarnObj("publishing scrape result failed", "api_publish_error", map[string]any{"error": err.Error()})
		}
	}

	c.JSON(http.StatusOK, result)
}

// clearCache refuses to run while a scrape holds the cache open.
func (s *Server) clearCache(c *gin.Context) {
	if !s.mu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "busy",
			"message": "a scrape is running, retry once it finishes",
		})
		return
	}
	defer s.mu.Unlock()

	removed, err := s.runner.ClearCache()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to clear cache",
		})
		return
	}

	msg := "No cache to clear."
	if removed {
		msg = "Cache cleared successfully."
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": msg})
}
