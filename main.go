package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tgdispatch/delivery"
	health "tgdispatch/health"
	"tgdispatch/internal/api"
	audit "tgdispatch/internal/audit"
	"tgdispatch/internal/config"
	"tgdispatch/internal/logging"
	"tgdispatch/queue"
	"tgdispatch/storage"
	tlsconfig "tgdispatch/tlsconfig"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dispatcher stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains the HTTP server and closes the queue.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	transport, err := buildTransport(cfg, logger)
	if err != nil {
		return err
	}

	storage.SetBaseDir(cfg.Storage.DeadLetterDir)
	q := queue.NewManager(transport,
		queue.WithConfig(cfg.Queue),
		queue.WithLogger(logger),
		queue.WithDeadLetter(spoolDeadLetter(logger)),
	)
	defer q.Close()

	limiter := api.NewClientLimiter(cfg.Server.APIRate, cfg.Server.APIBurst, 5*time.Minute)
	defer limiter.Stop()

	tlsConf, err := tlsconfig.LoadTLSConfig()
	switch {
	case errors.Is(err, tlsconfig.ErrTLSDisabled):
		tlsConf = nil
	case err != nil:
		return fmt.Errorf("load TLS: %w", err)
	}

	server, ln, err := health.Start(cfg.Server.HTTPAddr, newMux(q, limiter, logger), tlsConf)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.HTTPAddr, err)
	}
	scheme := "http"
	if tlsConf != nil {
		scheme = "https"
		audit.Log("TLS enabled on %s", ln.Addr())
	}
	logger.Info("dispatcher listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("scheme", scheme),
		slog.Duration("send_interval", q.Interval()))

	<-ctx.Done()
	logger.Info("shutting down", slog.Int("queued", q.Depth()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", slog.String("error", err.Error()))
	}
	return nil
}

func buildTransport(cfg config.Config, logger *slog.Logger) (delivery.Transport, error) {
	var opts []delivery.TelegramOption
	if cfg.Telegram.APIURL != "" {
		opts = append(opts, delivery.WithAPIURL(cfg.Telegram.APIURL))
	}
	tg, err := delivery.NewTelegram(cfg.Telegram.Token, opts...)
	if err != nil {
		return nil, err
	}
	return delivery.NewBreaker(tg, delivery.BreakerConfig{
		FailureThreshold: cfg.Breaker.Failures,
		ResetTimeout:     cfg.Breaker.Reset,
	}, logger), nil
}

func newMux(q *queue.Manager, limiter *api.ClientLimiter, logger *slog.Logger) *http.ServeMux {
	mux := health.NewMux(q)
	api.NewHandler(q, limiter, logger).Register(mux)
	return mux
}

func spoolDeadLetter(logger *slog.Logger) func(queue.Job, error) {
	return func(job queue.Job, cause error) {
		path, err := storage.SaveDeadLetter(deadLetterRecord(job, cause, time.Now().UTC()))
		if err != nil {
			logger.Error("failed to spool dead letter",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()))
			return
		}
		logger.Info("dead letter written", slog.String("job_id", job.ID), slog.String("path", path))
	}
}

func deadLetterRecord(job queue.Job, cause error, failedAt time.Time) storage.Record {
	rec := storage.Record{
		ID:          job.ID,
		Destination: job.Destination,
		Payload:     job.Payload.String(),
		Options:     job.Options,
		Priority:    job.Priority,
		Attempts:    job.Attempts,
		CreatedAt:   job.CreatedAt,
		FailedAt:    failedAt,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	return rec
}
