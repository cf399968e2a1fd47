package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MessageVersion is the newest payload layout this build understands.
const MessageVersion = 1

// Message asks a worker to run the import of one batch.
type Message struct {
	BatchID    string `json:"batchId"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage stamps an import job for batchID at the current version.
func NewMessage(batchID, requestID string, now time.Time) Message {
	return Message{
		BatchID:    batchID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// Handler processes one raw message body.
type Handler func(ctx context.Context, body []byte) error

func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a payload. Messages without a version predate
// versioning and are read as version 1; newer versions are rejected.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Version == 0 {
		msg.Version = 1
	}
	if msg.Version > MessageVersion {
		return Message{}, fmt.Errorf("unsupported message version %d", msg.Version)
	}
	return msg, nil
}
