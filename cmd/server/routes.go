package main

import (
	"io/fs"
	"mime"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/copilot-metrics/internal/handlers"
	"github.com/huangang/copilot-metrics/internal/middleware"
	"github.com/huangang/copilot-metrics/pkg/logger"
	"github.com/huangang/copilot-metrics/pkg/response"
)

// registerRoutes sets up all HTTP routes on the given gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(middleware.RequestID(), logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	r.GET("/health", handlers.NewHealthHandler(svc.db, svc.store).CheckHealth)
	r.GET("/metrics", handlers.NewMetricsHandler(svc.db, svc.store, svc.stats).Metrics)

	configHandler := handlers.NewConfigHandler(svc.store)
	metricsHandler := handlers.NewCopilotMetricsHandler(svc.proxy, svc.store, svc.stats, svc.systemLogs)
	systemLogHandler := handlers.NewSystemLogHandler(svc.systemLogs)

	api := r.Group("/api")
	{
		api.GET("/config", configHandler.GetConfig)
		api.POST("/config", middleware.AuditLog(svc.systemLogs), configHandler.UpdateConfig)

		// Every metrics request costs one upstream call
		metrics := api.Group("/copilot-metrics", svc.proxyLimiter.Middleware())
		{
			metrics.GET("", metricsHandler.GetMetrics)
			metrics.GET("/summary", metricsHandler.GetSummary)
		}

		api.GET("/system-logs", systemLogHandler.List)
	}

	registerStatic(r)
}

// registerStatic serves the embedded frontend with index.html as the SPA
// fallback. Unknown /api paths get a JSON 404.
func registerStatic(r *gin.Engine) {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return
	}

	serveIndex := func(c *gin.Context) {
		data, readErr := fs.ReadFile(staticFS, "index.html")
		if readErr != nil {
			c.String(404, "index.html not found")
			return
		}
		c.Data(200, "text/html; charset=utf-8", data)
	}

	r.GET("/", serveIndex)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.AbortWithStatusJSON(404, response.ErrorBody{Error: "Not found"})
			return
		}

		name := strings.TrimPrefix(path.Clean(c.Request.URL.Path), "/")
		data, readErr := fs.ReadFile(staticFS, name)
		if readErr != nil {
			// SPA routing
			serveIndex(c)
			return
		}

		contentType := mime.TypeByExtension(path.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Data(200, contentType, data)
	})
}
