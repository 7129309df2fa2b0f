// Package api wires handlers, middleware and routes onto the gin engine.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/copyarc/signup-api/internal/api/handlers"
	"github.com/copyarc/signup-api/internal/auth"
	"github.com/copyarc/signup-api/internal/config"
	zaplogrus "github.com/copyarc/signup-api/internal/logging/zaplogrus"
	"github.com/copyarc/signup-api/internal/middleware"
	"github.com/copyarc/signup-api/internal/services"
)

// Dependencies carries everything SetupRoutes needs.
type Dependencies struct {
	Config      *config.Config
	Users       *services.UserService
	OTP         *services.OTPService
	Tokens      *auth.TokenManager
	DBChecker   handlers.DatabaseHealthChecker
	RedisClient *redis.Client
	RedisCheck  handlers.RedisHealthChecker
	Logger      *zaplogrus.Logger
	ZapLogger   *zap.Logger
	Version     string
}

// SetupRoutes registers health probes and the /api/v1/auth surface.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.DBChecker, deps.RedisCheck, deps.Version)

	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.Readiness)
	router.GET("/live", healthHandler.Liveness)

	echoResetTokens := deps.Config.SMTP.Provider == "demo" || deps.Config.OTP.EchoCodes
	authHandler := handlers.NewAuthHandler(deps.Users, deps.OTP, deps.Tokens, echoResetTokens, deps.Logger)

	generalLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig(), deps.RedisClient, deps.ZapLogger)
	otpLimiter := middleware.NewRateLimiter(middleware.OTPRateLimitConfig(), deps.RedisClient, deps.ZapLogger)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	v1.Use(generalLimiter.Middleware())

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/send-otp", otpLimiter.Middleware(), authHandler.SendOTP)
		authGroup.POST("/verify-otp", authHandler.VerifyOTP)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
		authGroup.POST("/activate-user", authHandler.ActivateUser)

		protected := authGroup.Group("")
		protected.Use(auth.Middleware(deps.Tokens))
		{
			protected.GET("/me", authHandler.Me)
			protected.POST("/upload-ib-proof", authHandler.UploadIBProof)
		}
	}
}
