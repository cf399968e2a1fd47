package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"letters-backend/internal/bootstrap"
	"letters-backend/internal/queue"
	"letters-backend/internal/shared/config"
	"letters-backend/internal/shared/metrics"
	"letters-backend/internal/shared/telemetry"
	"letters-backend/internal/workerproc"
)

const defaultWorkerConcurrency = 2

func main() {
	cfg := config.Load()
	if cfg.AMQPURL == "" {
		fatal("amqp_worker.config_invalid", errors.New("LETTERS_AMQP_URL is required"))
	}
	concurrency := max(1, envInt("LETTERS_WORKER_CONCURRENCY", defaultWorkerConcurrency))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		fatal("amqp_worker.bootstrap_failed", err)
	}
	defer app.Close()

	client, err := queue.NewAMQPClient(cfg.AMQPURL, cfg.AMQPQueue, concurrency)
	if err != nil {
		fatal("amqp_worker.connect_failed", err)
	}
	defer client.Close()
	client.Retryable = workerproc.IsRetryable

	handler := countingHandler(workerproc.Handler(app.BatchProcessor))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tag := fmt.Sprintf("letters-worker-%d", n)
			if err := client.Consume(ctx, tag, handler); err != nil {
				telemetry.Error("amqp_worker.consume_stopped", map[string]any{"consumer": tag, "error": err.Error()})
				stop()
			}
		}(i)
	}
	telemetry.Info("amqp_worker.started", map[string]any{"queue": cfg.AMQPQueue, "concurrency": concurrency})
	wg.Wait()
	telemetry.Info("amqp_worker.stopped", nil)
}

func countingHandler(next queue.Handler) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		metrics.IncJobsReceived()
		err := next(ctx, body)
		switch {
		case err == nil:
			metrics.IncJobsCompleted()
		case workerproc.IsRetryable(err):
			metrics.IncJobsFailed()
		default:
			metrics.IncJobsDeletedUnrecoverable()
		}
		return err
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func fatal(event string, err error) {
	telemetry.Error(event, map[string]any{"error": err.Error()})
	os.Exit(1)
}
