package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/app"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/certificates"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/config"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/database"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/middleware"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/pdf"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/security"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/storage"
)

var (
	version = "dev"
	cli     struct {
		Config  string `help:"Path to JSON config file" default:"config.json" env:"CONFIG_PATH"`
		Version kong.VersionFlag
	}
)

func main() {
	kong.Parse(&cli,
		kong.Description("Issues and verifies course completion certificates."),
		kong.Vars{"version": version})

	// Load configuration
	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logger); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	awsCfg, err := app.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Fatal("Failed to load AWS configuration", zap.Error(err))
	}

	handler, err := newCertificateHandler(cfg, db, awsCfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize certificates", zap.Error(err))
	}

	// Setup Router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.CORS())

	var generateLimits []gin.HandlerFunc
	if cfg.RateLimit.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		defer rdb.Close()
		generateLimits = append(generateLimits, middleware.RateLimit(
			middleware.NewRedisCounter(rdb),
			middleware.RateLimitConfig{
				Prefix: "certificates:generate",
				Limit:  cfg.RateLimit.Limit,
				Window: cfg.RateLimit.Window,
			},
			logger,
		))
		logger.Info("Rate limiting enabled", zap.Int64("limit", cfg.RateLimit.Limit), zap.Duration("window", cfg.RateLimit.Window))
	}

	// Register Routes
	api := router.Group("/api/v1")
	{
		handler.RegisterRoutes(api, generateLimits...)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr), zap.String("ledger", cfg.Ledger.Backend))

	// Graceful Shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Server exiting")
}

func newCertificateHandler(cfg *config.Config, db *gorm.DB, awsCfg aws.Config, logger *zap.Logger) (*certificates.Handler, error) {
	ledger, err := app.NewLedger(cfg.Ledger, db, awsCfg)
	if err != nil {
		return nil, err
	}

	assets := certificates.NewAssetFetcher(certificates.AssetOptions{
		Timeout:  cfg.Assets.FetchTimeout,
		MaxBytes: cfg.Assets.MaxBytes,
		CacheDir: cfg.Assets.CacheDir,
	}, storage.NewS3ClientFromConfig(awsCfg, cfg.AWS.Endpoint))

	renderOptions := pdf.DefaultOptions()
	renderOptions.Author = cfg.Rendering.IssuerName
	renderOptions.Compress = cfg.Rendering.Compress
	if cfg.Rendering.FallbackTitle != "" {
		renderOptions.FallbackTitle = cfg.Rendering.FallbackTitle
	}

	var notifier certificates.Notifier
	if cfg.Notifications.SNSTopicARN != "" {
		notifier = certificates.NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.Notifications.SNSTopicARN)
	}

	service := certificates.NewService(
		security.NewTokenValidator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTAudience),
		certificates.NewEnrollmentDirectory(db),
		ledger,
		assets,
		pdf.NewGenerator(renderOptions, logger.Named("pdf")),
		notifier,
		logger.Named("certificates"),
	)
	return certificates.NewHandler(service, logger), nil
}
