// cmd/sync-server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fireflies-dealcloud-sync/internal/common/config"
	"fireflies-dealcloud-sync/internal/common/database"
	"fireflies-dealcloud-sync/internal/common/httpclient"
	"fireflies-dealcloud-sync/internal/common/logger"
	"fireflies-dealcloud-sync/internal/common/observability"
	"fireflies-dealcloud-sync/internal/dealcloud"
	"fireflies-dealcloud-sync/internal/fireflies"
	"fireflies-dealcloud-sync/internal/scheduler"
	"fireflies-dealcloud-sync/internal/server"
	"fireflies-dealcloud-sync/internal/store"
	"fireflies-dealcloud-sync/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", "console")
		fallback.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting sync server...",
		zap.String("listenAddress", cfg.Server.ListenAddress),
	)

	obs := observability.New("sync-server")
	defer obs.Shutdown()

	// --- Outbound transports ---
	firefliesTransport := httpclient.New(httpclient.Options{
		Timeout:    cfg.FirefliesTimeout(),
		MaxRetries: cfg.Sync.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
		Logger:     log,
	})
	dealcloudTransport := httpclient.New(httpclient.Options{
		Timeout:    cfg.DealCloudTimeout(),
		MaxRetries: cfg.Sync.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
		CallDelay:  cfg.RateLimitDelay(),
		Logger:     log,
	})

	firefliesClient := fireflies.NewClient(cfg.Fireflies.APIURL, cfg.Fireflies.APIKey, firefliesTransport, log)
	dealcloudClient := dealcloud.NewClient(cfg.DealCloud, dealcloudTransport, log)

	// --- Processed-transcript store (redis optional) ---
	var processed store.ProcessedSet
	if cfg.Redis.Address != "" {
		redisClient, redisErr := database.NewRedis(cfg.Redis)
		if redisErr == nil {
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			redisErr = redisClient.Ping(pingCtx)
			cancel()
		}
		if redisErr != nil {
			zapLog.Warn("Redis unavailable, falling back to in-memory processed store",
				zap.Error(redisErr),
			)
			processed = store.NewMemorySet()
		} else {
			defer redisClient.Close()
			processed = store.NewRedisSet(redisClient, cfg.Redis.Key)
			zapLog.Info("Using redis processed-transcript store",
				zap.String("address", cfg.Redis.Address),
				zap.String("key", cfg.Redis.Key),
			)
		}
	} else {
		processed = store.NewMemorySet()
	}

	// --- Sync pipeline ---
	engine := syncer.NewEngine(dealcloudClient, cfg.Sync.InternalDomains, cfg.Sync.ProjectStopWords, log)
	controller := syncer.NewController(syncer.ControllerOptions{
		Source:       firefliesClient,
		CRM:          dealcloudClient,
		Engine:       engine,
		Processed:    processed,
		DefaultLimit: cfg.Sync.TranscriptLimit,
		HardCap:      cfg.Sync.TranscriptCap,
		Logger:       log,
	})

	// --- HTTP surface and scheduler share one run guard ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Config:         cfg,
		Runner:         controller,
		FirefliesProbe: firefliesClient.TestConnection,
		DealCloudProbe: dealcloudClient.TestConnection,
		Observability:  obs,
		Logger:         log,
	})

	sched := scheduler.New(cfg.CronInterval(), srv, log)
	srv.AttachScheduler(sched)
	go sched.Start(ctx)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: srv.Handler(),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Sync server stopped")
}
