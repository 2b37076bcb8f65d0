package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const RunningMessage = "Notification Bridge is Running"

// EngineStatus is the part of the dispatch engine the health routes report on.
type EngineStatus interface {
	Running() bool
	Err() error
}

type Handler struct {
	engine    EngineStatus
	log       *zap.SugaredLogger
	startedAt time.Time
}

func NewHandler(engine EngineStatus, log *zap.SugaredLogger) *Handler {
	return &Handler{
		engine:    engine,
		log:       log,
		startedAt: time.Now(),
	}
}

// Router builds the gin engine with middleware and routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log), cors())

	SetupRoutes(r, h)
	return r
}

// Server returns an http.Server for addr. The caller owns ListenAndServe and Shutdown.
func (h *Handler) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Root is the liveness probe used by the hosting platform.
func (h *Handler) Root(c *gin.Context) {
	c.String(http.StatusOK, RunningMessage)
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"engine": "running",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	}
	if !h.engine.Running() {
		body["status"] = "degraded"
		body["engine"] = "stopped"
		if err := h.engine.Err(); err != nil {
			body["error"] = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
