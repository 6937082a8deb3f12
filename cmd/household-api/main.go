package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"household/internal/backend"
	"household/internal/cli"
	apphttp "household/internal/http"
	applog "household/internal/log"
	"household/internal/metrics"
	"household/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentHTTP)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	closeRepo := func(context.Context) error { return repo.Close() }

	runLock, closeLock, err := cli.NewRunLock(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize run lock", "error", err, "redis_addr", cfg.RedisAddr)
		cli.Abort(logger, closeRepo)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		cli.Abort(logger, closeLock, closeRepo)
	}
	publisher, closePublisher := backend.ConnectPublisher(bcfg, logger.Logger)

	m := metrics.New()
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Rules:              services.NewRuleService(repo),
		Transactions:       services.NewTransactionService(repo, publisher),
		Runner:             cli.NewRunner(cfg, repo, runLock, publisher, m),
		Directory:          repo,
		Metrics:            m,
		Logger:             logger,
		CronSecret:         cfg.CronSecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET is empty, the recurring trigger will reject every request")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting household API",
			"port", cfg.Port,
			"mirror_backend", cfg.MirrorBackend,
			applog.FieldOperation, applog.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", "error", err, "port", cfg.Port)
		}
	}

	cli.Shutdown(logger, 30*time.Second,
		srv.Shutdown,
		func(context.Context) error {
			if closePublisher == nil {
				return nil
			}
			return closePublisher()
		},
		closeLock,
		closeRepo,
	)
}
