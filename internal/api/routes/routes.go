// Package routes handles the setup and configuration of API routes
package routes

import (
	"log/slog"

	_ "storyboard/docs" // swagger docs
	"storyboard/internal/api/handlers"
	"storyboard/internal/api/middleware"
	"storyboard/internal/auth"
	"storyboard/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Dependencies are the collaborators the router is built from
type Dependencies struct {
	Service     *auth.Service
	DB          handlers.Pinger
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Metrics
	Registry    *prometheus.Registry
	Logger      *slog.Logger
}

// SetupRoutes configures all API routes and their handlers
func SetupRoutes(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(middleware.Metrics(deps.Metrics))

	healthHandler := handlers.NewHealthHandler(deps.DB)
	authHandler := handlers.NewAuthHandler(deps.Service, deps.Logger)
	authMiddleware := middleware.NewAuthMiddleware(deps.Service)

	// Routes without rate limiting
	r.GET("/health", healthHandler.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Registry)))
	}

	v1 := r.Group("/api/v1")
	if deps.RateLimiter != nil {
		v1.Use(deps.RateLimiter.Middleware())
	}
	{
		public := v1.Group("/auth")
		{
			public.POST("/register", authHandler.Register)
			public.POST("/login", authHandler.Login)
			public.POST("/refresh", authHandler.Refresh)
			public.GET("/verify-email", authHandler.VerifyEmail)
			public.POST("/verify-email", authHandler.VerifyEmail)
			public.POST("/resend-verification", authHandler.ResendVerification)
			public.POST("/forgot-password", authHandler.ForgotPassword)
			public.POST("/reset-password", authHandler.ResetPassword)
		}

		// Routes requiring a valid access token
		private := v1.Group("/auth")
		private.Use(authMiddleware.AuthRequired())
		{
			private.POST("/logout", authHandler.Logout)
			private.POST("/logout-all", authHandler.LogoutAll)
			private.PUT("/password", authHandler.ChangePassword)
			private.GET("/sessions", authHandler.ListSessions)
			private.DELETE("/sessions/:id", authHandler.RevokeSession)
			private.GET("/login-history", authHandler.LoginHistory)
		}
	}

	return r
}
