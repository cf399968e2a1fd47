package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("QUEUE_BACKEND", "")
	t.Setenv("LETTERS_SQS_QUEUE_URL", "")
	t.Setenv("LETTERS_AMQP_URL", "")

	cfg := Load()
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.QueueBackend != "local" {
		t.Fatalf("expected local queue backend, got %q", cfg.QueueBackend)
	}
	if cfg.BarcodeSeparator != "XX" {
		t.Fatalf("expected XX separator, got %q", cfg.BarcodeSeparator)
	}
	if cfg.BarcodeMaxPages != 2 {
		t.Fatalf("expected 2 pages, got %d", cfg.BarcodeMaxPages)
	}
	if cfg.ProgressTTL != 24*time.Hour {
		t.Fatalf("expected 24h progress ttl, got %s", cfg.ProgressTTL)
	}
}

func TestQueueBackendInferredFromURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		sqsURL  string
		amqpURL string
		want    string
	}{
		{name: "explicit rabbitmq", raw: "rabbitmq", want: "amqp"},
		{name: "sqs url", sqsURL: "https://sqs/queue", want: "sqs"},
		{name: "amqp url", amqpURL: "amqp://guest@localhost", want: "amqp"},
		{name: "explicit local wins", raw: "local", sqsURL: "https://sqs/queue", want: "local"},
		{name: "nothing configured", want: "local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeQueueBackend(tt.raw, tt.sqsURL, tt.amqpURL); got != tt.want {
				t.Fatalf("normalizeQueueBackend(%q,%q,%q) = %q, want %q", tt.raw, tt.sqsURL, tt.amqpURL, got, tt.want)
			}
		})
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("BARCODE_DPI", "-3")
	t.Setenv("REDIS_DB", "abc")
	t.Setenv("PROGRESS_TTL", "soon")

	cfg := Load()
	if cfg.BarcodeDPI != 200 {
		t.Fatalf("expected default dpi, got %v", cfg.BarcodeDPI)
	}
	if cfg.RedisDB != 0 {
		t.Fatalf("expected default redis db, got %d", cfg.RedisDB)
	}
	if cfg.ProgressTTL != 24*time.Hour {
		t.Fatalf("expected default ttl, got %s", cfg.ProgressTTL)
	}
}
