package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/rag-pipeline/internal/bootstrap"
	"github.com/kirillkom/rag-pipeline/internal/config"
	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/observability/logging"
	"github.com/kirillkom/rag-pipeline/internal/observability/metrics"
)

const processTimeout = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The worker exists only to drain the ingestion queue.
	cfg.AsyncIngest = true
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeIngestionRequested(ctx, func(handlerCtx context.Context, ingestionID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		if ingestion, err := app.ScheduleUC.GetByID(processCtx, ingestionID); err == nil {
			workerMetrics.ObserveQueueLag(time.Since(ingestion.CreatedAt))
		}

		done := workerMetrics.Track()
		err := app.ProcessUC.ProcessByID(processCtx, ingestionID)
		if err != nil {
			done(string(domain.IngestionFailed), 0, 0)
			return err
		}
		ingestion, err := app.ScheduleUC.GetByID(processCtx, ingestionID)
		if err != nil {
			done("unknown", 0, 0)
			return nil
		}
		done(string(ingestion.Status), ingestion.Records, ingestion.Upserted)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

