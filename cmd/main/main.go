package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/access"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/config"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/gateway"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/healthcheck"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/hierarchy"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/jetstream"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/observer"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/storage"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/usecase"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	orgID := cfg.Org.ID
	if orgID == "" {
		orgID = cfg.Org.Default
	}
	if orgID == "" {
		logger.Log.Fatal("Org ID is required (set ORG_ID or org.id)")
	}

	logger.Log.Info("Starting WA Archive Engine",
		zap.String("environment", cfg.Environment),
		zap.String("org_id", orgID),
		zap.String("nats_url", cfg.NATS.URL),
	)

	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate, orgID)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	jsClient, err := initJetStreamClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	// Repository adapters for the service
	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	contactRepo := storage.NewContactRepoAdapter(postgresRepo)
	sessionRepo := storage.NewSessionRepoAdapter(postgresRepo)
	directoryRepo := storage.NewDirectoryRepoAdapter(postgresRepo)
	mediaRepo := storage.NewMediaRepoAdapter(postgresRepo)
	syncRunRepo := storage.NewSyncRunRepoAdapter(postgresRepo)

	// Access resolver over the principal hierarchy
	tree := hierarchy.NewStore(directoryRepo)
	resolver := access.NewResolver(directoryRepo, sessionRepo, tree)

	// Gateway client for history syncs
	gatewayClient := gateway.NewNATSClient(jsClient.NatsConn(), cfg.Gateway)

	// Media descriptor worker pool
	mediaWorker, err := usecase.NewMediaWorker(cfg.WorkerPools.Media, mediaRepo, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize media worker pool", zap.Error(err))
	}

	service := usecase.NewArchiveService(
		messageRepo,
		contactRepo,
		sessionRepo,
		directoryRepo,
		mediaRepo,
		syncRunRepo,
		resolver,
		gatewayClient,
		cfg.Gateway,
		mediaWorker,
	)

	processor := usecase.NewProcessor(service, jsClient, cfg, orgID)
	if err := processor.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up processor", zap.Error(err))
	}

	// Periodic gap-fill for connected sessions
	scheduler := usecase.NewSyncScheduler(service, cfg.Sync, orgID)
	if err := scheduler.Start(); err != nil {
		logger.Log.Fatal("Failed to start gap-fill scheduler", zap.Error(err))
	}

	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Server.Port), logger.Log)

	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	healthServer.Start()

	logger.Log.Info("Health check endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	if err := processor.Start(); err != nil {
		logger.Log.Fatal("Failed to start processor", zap.Error(err))
	}

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(4)

	// Shutdown processor (consumer + in-flight syncs)
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping event processor")
		start := time.Now()
		scheduler.Stop()
		processor.Stop()
		logger.Log.Info("[shutdown] Event processor stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping event processor",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown media worker pool
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping media worker pool")
		start := time.Now()
		mediaWorker.Stop()
		logger.Log.Info("[shutdown] Media worker pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping media worker pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown health check server
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping health check server")
		start := time.Now()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Health check server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping health check server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database and NATS connections
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsStart := time.Now()
		jsClient.Close()
		logger.Log.Info("[shutdown] JetStream connection closed",
			zap.Duration("duration", time.Since(jsStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("WA Archive Engine shutdown complete")
}

func initPostgresRepo(dsn string, autoMigrate bool, orgID string) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

func initJetStreamClient(url string) (*jetstream.Client, error) {
	client, err := jetstream.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream client: %w", err)
	}
	return client, nil
}
