package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// Deps are the services the router needs beyond handlers.
type Deps struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
	Limiter  *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(deps Deps, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper: func(c *gin.Context) bool {
			return c.GetHeader("Accept") == "text/event-stream"
		},
	}))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "sessions": deps.Sessions.Stats()})
	})

	// ─── 1. Student Group (JWT + Rate Limit) ───────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(deps.Auth))
	if deps.Limiter != nil {
		studentAPI.Use(deps.Limiter.Middleware())
	}
	{
		studentAPI.GET("/papers/:paper_id/attempt", handlers.Session.GetAttempt)

		sessionAPI := studentAPI.Group("/papers/:paper_id/session")
		sessionAPI.POST("", handlers.Session.StartSession)
		sessionAPI.GET("", handlers.Session.GetSession)
		sessionAPI.GET("/result", handlers.Session.GetResult)
		sessionAPI.PUT("/questions/:question_id/answer", handlers.Session.SelectAnswer)
		sessionAPI.DELETE("/questions/:question_id/answer", handlers.Session.ClearAnswer)
		sessionAPI.POST("/questions/:question_id/flag", handlers.Session.ToggleFlag)
		sessionAPI.POST("/navigate", handlers.Session.Navigate)
		sessionAPI.POST("/next", handlers.Session.Next)
		sessionAPI.POST("/previous", handlers.Session.Previous)
		sessionAPI.POST("/pause", handlers.Session.Pause)
		sessionAPI.POST("/resume", handlers.Session.Resume)
		sessionAPI.POST("/submit", handlers.Session.Submit)
		sessionAPI.POST("/abandon", handlers.Session.Abandon)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(deps.Auth))
	{
		ws.GET("/student/papers/:paper_id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Admin Group (read-only operations) ─────────────────────────
	if handlers.System != nil {
		adminAPI := router.Group("/api/v1/admin")
		adminAPI.Use(middleware.RequireAdminJWT(deps.Auth))
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
