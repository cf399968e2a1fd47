package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"letters-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	LogLevel        string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	// QueueBackend selects how import jobs are dispatched: "sqs", "amqp" or "local".
	QueueBackend string
	SQSQueueURL  string
	AMQPURL      string
	AMQPQueue    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ProgressTTL   time.Duration

	ImportProfilesFile string

	RegistryDriver      string
	RegistryDSN         string
	RegistryFixtureFile string

	BarcodeDPI          float64
	BarcodeMaxPages     int
	BarcodeSeparator    string
	BarcodePreviewWidth int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience; missing files are fine.
	for _, path := range []string{".env", "cmd/.env"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": env})
	}

	sqsURL := strings.TrimSpace(os.Getenv("LETTERS_SQS_QUEUE_URL"))
	amqpURL := strings.TrimSpace(os.Getenv("LETTERS_AMQP_URL"))

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		QueueBackend: normalizeQueueBackend(getEnv("QUEUE_BACKEND", ""), sqsURL, amqpURL),
		SQSQueueURL:  sqsURL,
		AMQPURL:      amqpURL,
		AMQPQueue:    getEnv("LETTERS_AMQP_QUEUE", "letters_import"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ProgressTTL:   getEnvDuration("PROGRESS_TTL", 24*time.Hour),

		ImportProfilesFile: getEnv("IMPORT_PROFILES_FILE", ""),

		RegistryDriver:      normalizeRegistryDriver(getEnv("REGISTRY_DRIVER", "")),
		RegistryDSN:         getEnv("REGISTRY_DSN", ""),
		RegistryFixtureFile: getEnv("REGISTRY_FIXTURE_FILE", ""),

		BarcodeDPI:          getEnvFloat("BARCODE_DPI", 200),
		BarcodeMaxPages:     getEnvInt("BARCODE_MAX_PAGES", 2),
		BarcodeSeparator:    getEnv("BARCODE_SEPARATOR", "XX"),
		BarcodePreviewWidth: getEnvInt("BARCODE_PREVIEW_WIDTH", 600),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
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

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val <= 0 {
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

// normalizeQueueBackend picks an explicit backend or infers one from the
// configured URLs, falling back to in-process dispatch.
func normalizeQueueBackend(raw, sqsURL, amqpURL string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "amqp", "rabbitmq":
		return "amqp"
	case "local":
		return "local"
	}
	if sqsURL != "" {
		return "sqs"
	}
	if amqpURL != "" {
		return "amqp"
	}
	return "local"
}

func normalizeRegistryDriver(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pgx":
		return "pgx"
	case "mysql":
		return "mysql"
	default:
		return ""
	}
}
