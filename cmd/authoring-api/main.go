package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-authoring-api/internal/handler"
	"github.com/noah-isme/edu-authoring-api/internal/repository"
	"github.com/noah-isme/edu-authoring-api/internal/service"
	"github.com/noah-isme/edu-authoring-api/pkg/cache"
	"github.com/noah-isme/edu-authoring-api/pkg/config"
	"github.com/noah-isme/edu-authoring-api/pkg/database"
	"github.com/noah-isme/edu-authoring-api/pkg/jobs"
	"github.com/noah-isme/edu-authoring-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edu-authoring-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edu-authoring-api/pkg/middleware/requestid"
	"github.com/noah-isme/edu-authoring-api/pkg/storage"
)

// @title Edu Authoring API
// @version 1.0.0
// @description Activity authoring wizard and AI-assisted correction pipeline
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logr.Warn("unknown timezone, falling back to UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		loc = time.UTC
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Gateway.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := service.NewActivityValidator(validator.New())

	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, "authoring", logr),
		metrics, cfg.Gateway.CacheTTL, logr, redisClient != nil,
	)
	gateway := buildGateway(cfg, validate, cacheSvc, metrics, logr)

	classRepo := repository.NewClassRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	roster := service.NewRosterService(classRepo, activityRepo, submissionRepo, loc, logr)
	templates := service.NewTemplateCatalog()
	wizard := service.NewWizardService(
		repository.NewWizardSessionRepository(), roster, templates, gateway, validate, metrics,
		service.WizardConfig{
			SessionTTL:        cfg.Wizard.SessionTTL,
			SweepInterval:     cfg.Wizard.SweepInterval,
			// headroom for rate limiter waits in front of the gateway call
			GenerationTimeout: cfg.Gateway.Timeout + 30*time.Second,
		},
		logr,
	)
	defer wizard.Shutdown()

	corrections := service.NewCorrectionService(submissionRepo, activityRepo, classRepo, gateway, metrics,
		service.CorrectionConfig{
			ConfidenceThreshold: cfg.Correction.ConfidenceThreshold,
			BatchConcurrency:    cfg.Correction.BatchConcurrency,
		},
		logr,
	)
	worker := service.NewCorrectionWorker(corrections, 0, logr)
	queue := jobs.NewQueue("corrections", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Correction.Workers,
		MaxRetries: cfg.Correction.Retries,
		RetryDelay: cfg.Correction.RetryDelay,
		Logger:     logr,
		DeadLetter: worker.DeadLetter,
	})
	corrections.SetQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	go wizard.Run(ctx)

	archive, err := storage.NewLocalStore(cfg.Export.Dir)
	if err != nil {
		return err
	}
	exports := service.NewExportService(roster, logr).
		WithArchive(archive, storage.NewLinkSigner(cfg.Export.SigningSecret, cfg.Export.LinkTTL))
	go purgeExports(ctx, exports, cfg.Export.LinkTTL)

	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: cfg.JWT.Expiration,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	registerRoutes(r, cfg, routeDeps{
		tokens:     tokens,
		metrics:    metrics,
		templates:  handler.NewTemplateHandler(templates),
		wizard:     handler.NewWizardHandler(wizard, validate),
		activity:   handler.NewActivityHandler(roster, corrections, exports, validate),
		correction: handler.NewCorrectionHandler(corrections, validate),
		ops:        handler.NewMetricsHandler(metrics, queue, cacheSvc, readinessChecks(db, redisClient)),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "gateway", cfg.Gateway.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func purgeExports(ctx context.Context, exports *service.ExportService, ttl time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exports.PurgeArchive(ttl)
		}
	}
}

func buildGateway(cfg *config.Config, validate *service.ActivityValidator, cacheSvc *service.CacheService, metrics *service.MetricsService, logr *zap.Logger) service.ContentGateway {
	var gateway service.ContentGateway
	switch cfg.Gateway.Provider {
	case config.GatewayLLM:
		gateway = service.NewLLMGateway(service.LLMGatewayConfig{
			BaseURL:           cfg.Gateway.BaseURL,
			APIKey:            cfg.Gateway.APIKey,
			Model:             cfg.Gateway.Model,
			Timeout:           cfg.Gateway.Timeout,
			RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		}, nil, validate, logr)
	default:
		gateway = service.NewHeuristicGateway(logr)
	}
	if cacheSvc.Enabled() {
		gateway = service.NewCachingGateway(gateway, cacheSvc, cfg.Gateway.CacheTTL, logr)
	}
	return service.NewInstrumentedGateway(gateway, metrics, logr)
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
