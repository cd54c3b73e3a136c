package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/salary-bot/internal/utils"
)

// NewRouter builds the health-check router answering GET / and GET /health
func NewRouter(logger *utils.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	health := func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
	router.GET("/", health)
	router.GET("/health", health)
	router.HEAD("/", health)

	return router
}

// HealthServer serves the health endpoint for an external uptime monitor
type HealthServer struct {
	srv    *http.Server
	logger *utils.Logger
}

// NewHealthServer creates a server listening on port
func NewHealthServer(port int, logger *utils.Logger) *HealthServer {
	return &HealthServer{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background
func (h *HealthServer) Start() {
	go func() {
		h.logger.Info("health server listening on %s", h.srv.Addr)
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully
func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
