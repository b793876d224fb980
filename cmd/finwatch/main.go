package main

import (
	"context"
	"os"
	"time"

	"finwatch/internal/backend"
	"finwatch/internal/cli"
	apphttp "finwatch/internal/http"
	"finwatch/internal/log"
	"finwatch/internal/session"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	res, err := backend.NewFactory(logger).Create(startCtx, bcfg)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize backends", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	deps := session.Deps{
		Ledger:          res.Ledger,
		Documents:       res.Documents,
		Toaster:         res.Toaster,
		Logger:          logger,
		RefreshInterval: cfg.RefreshInterval,
		DismissDuration: cfg.DismissDuration,
	}
	sessions := session.NewManager(deps.Factory(), session.Config{
		IdleTTL:     cfg.SessionIdleTTL,
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
	})
	sessions.StartSweeper(time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Sessions:           sessions,
		Checks:             res.Checks,
		JWTSecret:          cfg.JWTSecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, trusting the X-User-ID header")
	}

	ctx, stop, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		sessions.Close()
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting finwatch server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"kv_backend", cfg.KVBackend)
	exitCode := 0
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		exitCode = 1
		stop()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
	os.Exit(exitCode)
}
