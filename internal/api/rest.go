// Package api provides the REST API handlers and server for motion.
// It includes endpoints for managing motions and their schedules, and
// real-time value updates via WebSocket.
package api

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mescon/motion/internal/config"
	"github.com/mescon/motion/internal/db"
	"github.com/mescon/motion/internal/eventbus"
	"github.com/mescon/motion/internal/logger"
	"github.com/mescon/motion/internal/metrics"
	"github.com/mescon/motion/internal/services"
	"github.com/mescon/motion/internal/web"
)

type RESTServer struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        *config.Config
	repo       *db.Repository
	eventBus   eventbus.Publisher
	registry   *services.MotionRegistry
	scheduler  *services.SchedulerService
	metrics    *metrics.MetricsService
	hub        *WebSocketHub
	startTime  time.Time
}

// ServerDeps contains all dependencies required for the REST server.
// Repo, Scheduler and Metrics may be nil; their endpoints then answer 503.
type ServerDeps struct {
	Config    *config.Config
	Repo      *db.Repository
	EventBus  eventbus.Publisher
	Registry  *services.MotionRegistry
	Scheduler *services.SchedulerService
	Metrics   *metrics.MetricsService
}

func NewRESTServer(deps ServerDeps) *RESTServer {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Get()
	}

	// Set Gin to release mode for production (suppresses debug warnings)
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Request ID middleware for correlation/tracing
	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	})

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      ErrMsgInternalError,
			"request_id": reqID,
		})
	}))

	r.Use(corsMiddleware(cfg.CORSOrigin))

	s := &RESTServer{
		router:    r,
		cfg:       cfg,
		repo:      deps.Repo,
		eventBus:  deps.EventBus,
		registry:  deps.Registry,
		scheduler: deps.Scheduler,
		metrics:   deps.Metrics,
		hub:       NewWebSocketHub(deps.EventBus, deps.Registry, cfg.CORSOrigin),
		startTime: time.Now(),
	}

	s.setupRoutes()

	return s
}

// corsMiddleware sets CORS headers for the configured origins. Empty means
// same-origin only, "*" allows everything, otherwise a comma-separated list.
func corsMiddleware(corsOrigins string) gin.HandlerFunc {
	allowedOrigins := make(map[string]bool)
	if corsOrigins != "" {
		for _, origin := range strings.Split(corsOrigins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if corsOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// indexHTMLFile is the name of the index file for the demo page
const indexHTMLFile = "index.html"

// serveIndexWithBasePath serves index.html with the base path injected
func (s *RESTServer) serveIndexWithBasePath(basePath string, readFile func() ([]byte, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := readFile()
		if err != nil {
			logger.Errorf("Failed to read index.html: %v", err)
			c.Status(http.StatusNotFound)
			return
		}
		injectedScript := fmt.Sprintf(`<script>window.__MOTION_BASE_PATH__=%q;</script></head>`, basePath)
		html := strings.Replace(string(data), "</head>", injectedScript, 1)
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
	}
}

// setupEmbeddedAssets configures routes for serving the embedded demo page
func (s *RESTServer) setupEmbeddedAssets(base *gin.RouterGroup, basePath string) {
	webFS := web.GetFS()
	logger.Debugf("Embedded files: %v", web.ListEmbeddedFiles())

	indexHandler := s.serveIndexWithBasePath(basePath, func() ([]byte, error) {
		return fs.ReadFile(webFS, indexHTMLFile)
	})

	base.GET("/", indexHandler)
	base.GET("/"+indexHTMLFile, indexHandler)

	s.router.NoRoute(func(c *gin.Context) {
		if strings.Contains(c.Request.URL.Path, "/api/") {
			respondWithError(c, http.StatusNotFound, ErrMsgNotFound, nil)
			return
		}
		if basePath == "/" || strings.HasPrefix(c.Request.URL.Path, basePath) {
			indexHandler(c)
		} else {
			c.Redirect(http.StatusMovedPermanently, basePath)
		}
	})
}

// setupAPIOnlyMode configures routes when no web assets are available
func (s *RESTServer) setupAPIOnlyMode(basePath string) {
	logger.Infof("No embedded web assets found - running in API-only mode")

	s.router.NoRoute(func(c *gin.Context) {
		if strings.Contains(c.Request.URL.Path, "/api/") {
			respondWithError(c, http.StatusNotFound, ErrMsgNotFound, nil)
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Web UI not available",
			"api":   strings.TrimSuffix(basePath, "/") + "/api/",
		})
	})
}

func (s *RESTServer) setupRoutes() {
	basePath := s.cfg.BasePath
	if basePath == "" {
		basePath = "/"
	}

	// Prometheus metrics endpoint at root level, not behind the base path
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	var base *gin.RouterGroup
	if basePath == "/" {
		base = s.router.Group("")
	} else {
		base = s.router.Group(basePath)
		s.router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, basePath)
		})
	}

	api := base.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/easings", s.handleEasings)

		api.GET("/motions", s.listMotions)
		api.POST("/motions", s.createMotion)
		api.GET("/motions/:id", s.getMotion)
		api.DELETE("/motions/:id", s.deleteMotion)
		api.POST("/motions/:id/start", s.startMotion)
		api.POST("/motions/:id/finish", s.finishMotion)
		api.GET("/motions/:id/events", s.getMotionEvents)

		api.GET("/motions/:id/schedules", s.getSchedules)
		api.POST("/motions/:id/schedules", s.addSchedule)
		api.DELETE("/schedules/:id", s.deleteSchedule)

		api.GET("/ws", func(c *gin.Context) {
			s.hub.HandleConnection(c)
		})
	}

	if web.HasEmbeddedAssets() {
		s.setupEmbeddedAssets(base, basePath)
	} else {
		s.setupAPIOnlyMode(basePath)
	}
}

// Handler returns the router, for tests and embedding.
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

func (s *RESTServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and disconnects WebSocket
// clients.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
