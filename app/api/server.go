package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicboard/civicboard/app/cfg"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware: the directory is consumed by browser frontends on
	// other origins.
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler) {
	api := r.Group("/api")
	{
		api.GET("/organizations", handler.ListOrganizations)
		api.GET("/organizations/:id", handler.GetOrganization)
		api.GET("/organizations/:id/projects", handler.GetOrganizationProjects)
		api.GET("/organizations/:id/issues", handler.GetOrganizationIssues)
		api.GET("/organizations/:id/events", handler.GetOrganizationEvents)
		api.GET("/organizations/:id/stories", handler.GetOrganizationStories)
		api.GET("/organizations/:id/attendance", handler.GetOrganizationAttendance)
		api.POST("/organizations/:id/attendance", handler.PutOrganizationAttendance)
	}

	r.GET("/health", handler.GetHealth)

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "Civicboard",
			"version":     cfg.GetVersion(),
			"description": "Directory of civic-tech organizations, their projects, issues, events and stories",
			"endpoints": map[string]string{
				"organizations": "/api/organizations",
				"organization":  "/api/organizations/<id>",
				"projects":      "/api/organizations/<id>/projects",
				"issues":        "/api/organizations/<id>/issues",
				"events":        "/api/organizations/<id>/events",
				"stories":       "/api/organizations/<id>/stories",
				"attendance":    "/api/organizations/<id>/attendance",
				"health":        "/health",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
