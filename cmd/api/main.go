// Command api runs the compliance record backend: template registry,
// document ingest with envelope encryption, audit trail, risk ratings and
// the industry catalog behind one HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/api/rest"
	"github.com/safeworkhq/compliance-backend/internal/crypto"
	"github.com/safeworkhq/compliance-backend/internal/domain/document"
	"github.com/safeworkhq/compliance-backend/internal/infrastructure/cache"
	"github.com/safeworkhq/compliance-backend/internal/infrastructure/config"
	"github.com/safeworkhq/compliance-backend/internal/infrastructure/database"
	"github.com/safeworkhq/compliance-backend/internal/infrastructure/telemetry"
	"github.com/safeworkhq/compliance-backend/internal/service/catalog"
	"github.com/safeworkhq/compliance-backend/internal/service/extraction"
	"github.com/safeworkhq/compliance-backend/internal/service/records"
	"github.com/safeworkhq/compliance-backend/internal/service/registry"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	slog.SetDefault(logger)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("setup zap logger: %w", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "safework-backend",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	})
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer tracing.Shutdown(context.Background())

	// The envelope refuses a missing or short master secret; this is the
	// fail-fast point for misconfigured deployments.
	envelope, err := crypto.NewEnvelope([]byte(cfg.Crypto.MasterSecret), cfg.Crypto.KDFIterations)
	if err != nil {
		return fmt.Errorf("initialize envelope encryption: %w", err)
	}

	pool, err := database.Connect(ctx, &cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	auditRepo := database.NewAuditRepository(pool, zapLogger)
	templateRepo := database.NewTemplateRepository(pool, zapLogger)
	submissionRepo := database.NewSubmissionRepository(pool, zapLogger)

	var templateCache registry.TemplateCache
	if cfg.Redis.Address != "" {
		c, err := cache.NewTemplateCache(&cfg.Redis, zapLogger)
		if err != nil {
			// The registry works without a cache; degraded, not down.
			zapLogger.Warn("template cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer c.Close()
			templateCache = c
		}
	}

	catalogSvc, err := catalog.NewService(cfg.Catalog.Path, zapLogger)
	if err != nil {
		return fmt.Errorf("load industry catalog: %w", err)
	}

	hub := rest.NewAuditHub(logger)
	trail := rest.NewBroadcastingTrail(auditRepo, hub)

	registrySvc := registry.NewService(templateRepo, submissionRepo, templateCache, zapLogger)
	recordsSvc := records.NewService(
		registrySvc, submissionRepo, templateRepo, trail,
		document.NewPlainTextReader(), extraction.NewEngine(), envelope, zapLogger)

	handler := rest.NewHandler(registrySvc, recordsSvc, trail, catalogSvc, hub, logger)
	server := rest.NewServer(cfg, rest.NewRouter(handler, cfg, logger), logger)

	logger.Info("starting safework backend",
		"version", version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)
	return server.Start(ctx)
}
