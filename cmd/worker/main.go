package main

import (
	"context"
	"errors"
	"maps"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"letters-backend/internal/bootstrap"
	"letters-backend/internal/shared/config"
	"letters-backend/internal/shared/metrics"
	"letters-backend/internal/shared/telemetry"
	"letters-backend/internal/workerproc"
)

const (
	defaultRegion       = "us-east-1"
	defaultVisibility   = 1800
	defaultConcurrency  = 2
	defaultShutdownSecs = 60
	receiveBatchSize    = 10
	receiveWaitSeconds  = 20
	receiveBackoffBase  = time.Second
	receiveBackoffMax   = 30 * time.Second
)

// poller long-polls SQS and runs up to concurrency imports at once.
type poller struct {
	client      sqsAPI
	queueURL    string
	processor   workerproc.Processor
	visibility  int32
	concurrency int
	// backoff is the first delay after a failed receive. Zero means one second.
	backoff time.Duration
}

func main() {
	cfg := config.Load()
	if cfg.SQSQueueURL == "" {
		fatal("worker.config_invalid", errors.New("LETTERS_SQS_QUEUE_URL is required"))
	}
	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		fatal("worker.aws_config_failed", err)
	}
	app, err := bootstrap.Build(cfg)
	if err != nil {
		fatal("worker.bootstrap_failed", err)
	}
	defer app.Close()

	p := &poller{
		client:      sqs.NewFromConfig(awsCfg),
		queueURL:    cfg.SQSQueueURL,
		processor:   app.BatchProcessor,
		visibility:  int32(envInt("LETTERS_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibility)),
		concurrency: max(1, envInt("LETTERS_WORKER_CONCURRENCY", defaultConcurrency)),
	}
	telemetry.Info("worker.started", map[string]any{
		"queue":       p.queueURL,
		"concurrency": p.concurrency,
		"visibility":  p.visibility,
	})

	inflight := p.run(ctx)

	grace := time.Duration(envInt("LETTERS_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownSecs)) * time.Second
	telemetry.Info("worker.shutdown", map[string]any{"timeout": grace.String()})
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": grace.String()})
	}
}

// run polls until ctx is cancelled and returns the group of imports still in
// flight.
func (p *poller) run(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	slots := make(chan struct{}, p.concurrency)
	failures := 0
	for ctx.Err() == nil {
		resp, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(p.queueURL),
			MaxNumberOfMessages: receiveBatchSize,
			WaitTimeSeconds:     receiveWaitSeconds,
			VisibilityTimeout:   p.visibility,
			AttributeNames:      []sqstypes.QueueAttributeName{"ApproximateReceiveCount"},
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			delay := p.receiveBackoff(failures)
			telemetry.Error("worker.receive_failed", map[string]any{
				"error":    err.Error(),
				"failures": failures,
				"retry_in": delay.String(),
			})
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			continue
		}
		failures = 0
		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				return &wg
			case slots <- struct{}{}:
			}
			metrics.IncJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-slots }()
				// A shutdown signal stops polling but lets running imports finish.
				handleMessage(context.WithoutCancel(ctx), p.client, p.queueURL, p.processor, m)
			}(msg)
		}
	}
	return &wg
}

// receiveBackoff doubles the delay per consecutive failure, capped at
// receiveBackoffMax.
func (p *poller) receiveBackoff(failures int) time.Duration {
	delay := p.backoff
	if delay <= 0 {
		delay = receiveBackoffBase
	}
	for i := 1; i < failures && delay < receiveBackoffMax; i++ {
		delay *= 2
	}
	return min(delay, receiveBackoffMax)
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// handleMessage deletes the message once it is processed or known to be
// unprocessable. Retryable failures stay on the queue for redelivery.
func handleMessage(ctx context.Context, client sqsAPI, queueURL string, processor workerproc.Processor, msg sqstypes.Message) {
	decoded, meta, err := workerproc.ParseMessage(aws.ToString(msg.Body))
	if err != nil {
		fields := baseFields(msg, "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		event := "worker.import.rejected"
		var msgErr *workerproc.MessageError
		if errors.As(err, &msgErr) {
			event = "worker.import." + string(msgErr.Problem)
			if msgErr.RequestID != "" {
				fields["request_id"] = msgErr.RequestID
			}
		}
		fields["error"] = err.Error()
		telemetry.Error(event, fields)
		if deleteMessage(ctx, client, queueURL, msg, fields) {
			metrics.IncJobsDeletedUnrecoverable()
		}
		return
	}

	fields := baseFields(msg, decoded.BatchID, decoded.RequestID)
	telemetry.Info("worker.import.received", fields)

	switch err := workerproc.Run(ctx, processor, decoded); {
	case err == nil:
		if deleteMessage(ctx, client, queueURL, msg, fields) {
			telemetry.Info("worker.import.completed", fields)
			metrics.IncJobsCompleted()
		}
	case workerproc.IsRetryable(err):
		fields["error"] = err.Error()
		telemetry.Error("worker.import.failed", fields)
		metrics.IncJobsFailed()
	default:
		fields["error"] = err.Error()
		telemetry.Error("worker.import.dropped", fields)
		if deleteMessage(ctx, client, queueURL, msg, fields) {
			metrics.IncJobsDeletedUnrecoverable()
		}
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, fields map[string]any) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	var err error
	if receipt == "" {
		err = errors.New("missing receipt handle")
	} else {
		_, err = client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(queueURL),
			ReceiptHandle: aws.String(receipt),
		})
	}
	if err != nil {
		failed := maps.Clone(fields)
		failed["delete_error"] = err.Error()
		telemetry.Error("worker.import.delete_failed", failed)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, batchID, requestID string) map[string]any {
	fields := map[string]any{
		"batch_id":       batchID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
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
