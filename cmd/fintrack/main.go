package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/theme"
	"fintrack/internal/tracker"
	"fintrack/internal/undo"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).Open(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to close storage backend", log.FieldError, err, log.FieldBackend, res.Type)
		}
	}()

	store, err := ledger.Open(ctx, res.Store, ledger.WithLogger(logger))
	if err != nil {
		return err
	}

	fallback, err := theme.Parse(cfg.DefaultTheme)
	if err != nil {
		fallback = theme.Light
	}

	opts := []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithBudgetLimit(cfg.BudgetLimit),
		tracker.WithTheme(theme.New(res.Store, fallback, logger)),
		tracker.WithUndoOptions(undo.WithWindow(cfg.UndoWindow)),
	}

	// The change feed is optional; the tracker works without it.
	if cfg.AMQPURL != "" {
		feed, err := amqp.NewClient(amqp.Options{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
			Queue:      cfg.AMQPQueue,
			Logger:     logger,
		})
		if err != nil {
			logger.Warn("Change feed unavailable, continuing without it", log.FieldError, err)
		} else {
			defer feed.Close()
			opts = append(opts, tracker.WithNotifier(feed))
		}
	}

	t := tracker.New(store, opts...)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:           net.JoinHostPort("", cfg.Port),
		Tracker:        t,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Ready: res.Ping,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fintrack server",
			"port", cfg.Port,
			log.FieldBackend, res.Type,
			log.FieldCount, store.Len(),
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		// Ends the undo window and writes the final ledger.
		return t.Close(shutdownCtx)
	})

	return g.Wait()
}
