package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/attestor/internal/api"
	"github.com/FairForge/attestor/internal/assessment"
	"github.com/FairForge/attestor/internal/audit"
	"github.com/FairForge/attestor/internal/catalog"
	"github.com/FairForge/attestor/internal/config"
	"github.com/FairForge/attestor/internal/database"
	"github.com/FairForge/attestor/internal/evidence"
	"github.com/FairForge/attestor/internal/webhooks"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg := config.Default()
	config.LoadFromEnv(cfg)

	pg, err := database.NewPostgres(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer func() { _ = pg.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pg.Ping(ctx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	if err := pg.CreateTables(ctx); err != nil {
		logger.Fatal("schema initialization failed", zap.Error(err))
	}

	evidenceStore := buildEvidenceStore(cfg, logger)

	cat := catalog.NewPostgresStore(pg.DB())
	ledger := assessment.NewLedger(pg.DB())
	notifier := webhooks.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.EventList(), logger)
	auditor := audit.NewRecorder(pg.DB())

	service := assessment.NewService(cat, ledger, evidenceStore, notifier, auditor, logger)

	// The local backend's signed URLs point back at this server, which must
	// verify the token and serve the object.
	localStore, _ := evidenceStore.(*evidence.LocalStore)
	server := api.NewServer(cfg, logger, service, cat, pg.DB(), localStore)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("attestor started",
		zap.Int("port", cfg.Server.Port),
		zap.String("evidence_backend", cfg.Evidence.Backend))

	if err := server.Start(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildEvidenceStore selects the evidence backend. A missing or unknown
// backend disables uploads rather than failing startup; assessments without
// evidence still work.
func buildEvidenceStore(cfg *config.Config, logger *zap.Logger) evidence.Store {
	switch cfg.Evidence.Backend {
	case "s3":
		store, err := evidence.NewS3Store(evidence.S3Options{
			Endpoint:     cfg.Evidence.S3.Endpoint,
			AccessKey:    cfg.Evidence.S3.AccessKey,
			SecretKey:    cfg.Evidence.S3.SecretKey,
			Region:       cfg.Evidence.S3.Region,
			Bucket:       cfg.Evidence.S3.Bucket,
			UsePathStyle: cfg.Evidence.S3.UsePathStyle,
		}, logger)
		if err != nil {
			logger.Warn("s3 evidence backend misconfigured, uploads disabled", zap.Error(err))
			return evidence.Disabled{}
		}
		logger.Info("using s3 evidence backend", zap.String("bucket", cfg.Evidence.S3.Bucket))
		return store
	case "local":
		store, err := evidence.NewLocalStore(cfg.Evidence.Local.Path,
			cfg.Evidence.Local.BaseURL, cfg.Evidence.Local.Secret, logger)
		if err != nil {
			logger.Warn("local evidence backend unavailable, uploads disabled", zap.Error(err))
			return evidence.Disabled{}
		}
		logger.Info("using local evidence backend", zap.String("path", cfg.Evidence.Local.Path))
		return store
	case "":
		logger.Info("evidence storage disabled")
		return evidence.Disabled{}
	default:
		logger.Warn("unknown evidence backend, uploads disabled",
			zap.String("backend", cfg.Evidence.Backend))
		return evidence.Disabled{}
	}
}
