package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/copyarc/signup-api/internal/api"
	"github.com/copyarc/signup-api/internal/auth"
	"github.com/copyarc/signup-api/internal/config"
	"github.com/copyarc/signup-api/internal/database"
	zaplogrus "github.com/copyarc/signup-api/internal/logging/zaplogrus"
	"github.com/copyarc/signup-api/internal/observability"
	"github.com/copyarc/signup-api/internal/services"
)

const serviceVersion = "1.0.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, connects PostgreSQL and Redis, wires the services
// and serves HTTP until a termination signal arrives.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := observability.InitSentry(cfg.Sentry, serviceVersion, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Sentry: %v\n", err)
	}
	defer observability.Flush(context.Background())

	logger := zaplogrus.New()
	logger.SetLevel(zaplogrus.ParseLevel(cfg.LogLevel))
	defer func() { _ = logger.Sync() }()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build zap logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database connection")
		}
	}()

	redisClient, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	sms := services.NewSMSSender(cfg.SMS, logger)
	email := services.NewEmailSender(cfg.SMTP, logger)

	users := services.NewUserService(db, redisClient, email, logger)
	otp := services.NewOTPService(redisClient, sms, email, logger, services.OTPServiceOptions{
		CodeExpiry: time.Duration(cfg.OTP.ExpireMinutes) * time.Minute,
		CodeLength: cfg.OTP.Length,
		EchoCodes:  cfg.OTP.EchoCodes,
	})
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryHours)

	if cfg.Environment != "production" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	if cfg.Sentry.Enabled && cfg.Sentry.DSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{
			Repanic:         true,
			WaitForDelivery: false,
			Timeout:         2 * time.Second,
		}))
	}
	router.Use(gin.Recovery())

	api.SetupRoutes(router, api.Dependencies{
		Config:      cfg,
		Users:       users,
		OTP:         otp,
		Tokens:      tokens,
		DBChecker:   db,
		RedisClient: redisClient.Client,
		RedisCheck:  redisClient,
		Logger:      logger,
		ZapLogger:   zapLogger,
		Version:     serviceVersion,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Signup API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// runMigrate applies the embedded schema and exits.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := database.NewPostgresConnectionWithContext(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	fmt.Println("Schema applied")
	return nil
}
