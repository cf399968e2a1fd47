package queue

import (
	"context"
	"fmt"
	"sync"

	"letters-backend/internal/shared/telemetry"
)

// LocalClient runs queued messages in background goroutines of the current
// process. It backs development setups without SQS or RabbitMQ.
type LocalClient struct {
	handler Handler
	sem     chan struct{}
	wg      sync.WaitGroup
}

// NewLocalClient returns a LocalClient running at most concurrency handlers at once.
func NewLocalClient(handler Handler, concurrency int) *LocalClient {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LocalClient{handler: handler, sem: make(chan struct{}, concurrency)}
}

// Send schedules the message and returns immediately. The handler runs with a
// context detached from the caller's cancellation.
func (c *LocalClient) Send(ctx context.Context, msg Message) error {
	if c.handler == nil {
		return fmt.Errorf("local queue has no handler")
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode local message: %w", err)
	}
	runCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sem <- struct{}{}
		defer func() { <-c.sem }()
		if err := c.handler(runCtx, payload); err != nil {
			telemetry.Error("local_queue.message_failed", map[string]any{
				"batch_id":   msg.BatchID,
				"request_id": msg.RequestID,
				"error":      err.Error(),
			})
		}
	}()
	return nil
}

// Wait blocks until every scheduled message has been handled.
func (c *LocalClient) Wait() {
	c.wg.Wait()
}

var _ Client = (*LocalClient)(nil)
