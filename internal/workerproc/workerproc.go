// Package workerproc turns queue payloads into import runs. The SQS poller,
// the SQS Lambda, the AMQP consumer and the in-process queue share it so they
// agree on which failures are worth a redelivery.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"letters-backend/internal/letters"
	"letters-backend/internal/queue"
)

// Processor runs the import of one batch.
type Processor interface {
	ProcessBatch(ctx context.Context, batchID string) error
}

// MessageMeta identifies a payload in logs without echoing it.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

func metaOf(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// Problem classifies a payload that can never be processed.
type Problem string

const (
	ProblemEmpty     Problem = "empty_body"
	ProblemDecode    Problem = "decode_failed"
	ProblemMissingID Problem = "missing_id"
)

// MessageError reports an unusable payload. These are never retried.
type MessageError struct {
	Problem   Problem
	Meta      MessageMeta
	RequestID string
	Err       error
}

func (e *MessageError) Error() string {
	if e.Err != nil {
		return string(e.Problem) + ": " + e.Err.Error()
	}
	return string(e.Problem)
}

func (e *MessageError) Unwrap() error { return e.Err }

// ProcessError wraps a failure from the import itself.
type ProcessError struct {
	BatchID   string
	RequestID string
	Err       error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process batch %s: %v", e.BatchID, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ParseMessage decodes and validates a payload. The meta is returned even on
// error so callers can log it.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := metaOf(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, &MessageError{Problem: ProblemEmpty, Meta: meta}
	}
	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, &MessageError{Problem: ProblemDecode, Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.BatchID) == "" {
		return msg, meta, &MessageError{Problem: ProblemMissingID, Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Run processes an already parsed message.
func Run(ctx context.Context, processor Processor, msg queue.Message) error {
	if processor == nil {
		return errors.New("import service not configured")
	}
	ctx = letters.WithRequestID(ctx, msg.RequestID)
	if err := processor.ProcessBatch(ctx, msg.BatchID); err != nil {
		return &ProcessError{BatchID: msg.BatchID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// HandleMessage parses body and runs the import it names.
func HandleMessage(ctx context.Context, processor Processor, body string) error {
	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}
	return Run(ctx, processor, msg)
}

// Handler adapts HandleMessage to queue.Handler.
func Handler(processor Processor) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		return HandleMessage(ctx, processor, string(body))
	}
}

// IsRetryable reports whether redelivery could succeed. Bad payloads, deleted
// batches and batches that can no longer be imported are final.
func IsRetryable(err error) bool {
	var procErr *ProcessError
	if !errors.As(err, &procErr) {
		return false
	}
	return !errors.Is(procErr.Err, letters.ErrNotFound) &&
		!errors.Is(procErr.Err, letters.ErrInvalidTransition)
}
