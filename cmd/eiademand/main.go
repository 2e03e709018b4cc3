package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"eiademand/internal/cache"
	"eiademand/internal/cli"
	"eiademand/internal/core"
	"eiademand/internal/eia"
	apphttp "eiademand/internal/http"
	applog "eiademand/internal/log"
	"eiademand/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	client := eia.NewClient(
		eia.WithPageTimeout(cfg.EIAPageTimeout),
		eia.WithLogger(logger),
	)

	tables := cache.NewLRUCache[core.Table](cfg.CacheMaxEntries, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(tables)
	cacheManager.StartCleanup(cfg.CacheCleanupInterval)

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithPageLength(cfg.EIAPageLength),
	}

	sinks := cli.SetupSinks(cfg, logger, true)
	opts = append(opts, sinks.Options()...)

	svc := services.NewDemandService(client, cfg.EIAAPIKey, cfg.Datasets, tables, opts...)

	unit, _ := core.ParseUnit(cfg.DefaultUnits)
	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Defaults: apphttp.Defaults{
			Dataset:     cfg.DefaultDataset,
			Start:       cfg.DefaultStart,
			End:         cfg.DefaultEnd,
			Unit:        unit,
			TopN:        cfg.DefaultTopN,
			EasternOnly: cfg.DefaultEasternOnly,
		},
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
		ReadTimeout:        10 * time.Second,
		// A cold report may page through the API several times.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
		sinks.Close()
	})

	logger.Info("Starting eiademand server",
		"port", cfg.Port,
		"datasets", cfg.Datasets.Names(),
		"eastern_only_default", cfg.DefaultEasternOnly,
		"sinks", sinks.Enabled())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
