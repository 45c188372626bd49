package http

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/confessions/internal/config"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterIdleTTL       = 30 * time.Minute
)

// SetupRoutes configures all application routes and middleware. ctx bounds
// the background goroutines the routes start.
func SetupRoutes(ctx context.Context, router *gin.Engine, env *Env, cfg config.Config) {

	// --- Middleware ---

	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(env.Log))
	router.Use(RecoveryMiddleware(env.Log))
	router.Use(SecurityHeadersMiddleware())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Token", requestIDHeader, "If-None-Match"},
		ExposeHeaders:    []string{"Content-Length", "ETag", requestIDHeader},
		AllowCredentials: cfg.CORSOrigin != "*",
	}))

	// --- Rate Limiter Setup ---
	limiter := NewIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	go limiter.Janitor(ctx, limiterSweepInterval, limiterIdleTTL)
	limited := RateLimitMiddleware(limiter)

	// --- API Routes ---

	api := router.Group("/api")
	{
		api.GET("/confessions", env.GetConfessions)
		api.POST("/confessions", limited, env.CreateConfession)
		api.GET("/confessions/:id/comments", env.GetComments)
		api.POST("/confessions/:id/comments", limited, env.CreateComment)
		api.POST("/confessions/:id/report", limited, env.ReportConfession)
		api.POST("/confessions/:id/like", env.LikeConfession)
		api.GET("/categories", env.GetCategories)
	}

	// --- Admin Routes ---

	adminPublic := api.Group("/admin")
	if cfg.Admin.PasswordHash != "" {
		secure := cfg.SecureCookies()
		adminPublic.Use(AdminSessions(cfg.Admin, secure))
		adminPublic.POST("/login", limited, env.AdminLogin(cfg.Admin.PasswordHash))
		adminPublic.POST("/logout", env.AdminLogout(secure))
	}

	admin := adminPublic.Group("", AdminAuthMiddleware(cfg.Admin))
	{
		admin.GET("/confessions", env.AdminListConfessions)
		admin.PATCH("/confessions/:id", env.AdminUpdateStatus)
		admin.DELETE("/confessions/:id", env.AdminDeleteConfession)
		admin.DELETE("/comments/:id", env.AdminDeleteComment)
	}

	// --- Live feed and health ---

	router.GET("/ws", func(c *gin.Context) {
		env.Feed.ServeWs(c.Writer, c.Request)
	})
	router.GET("/healthz", env.Health)
}
