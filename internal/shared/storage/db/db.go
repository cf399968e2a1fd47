package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"letters-backend/internal/shared/telemetry"
)

// Profile selects pool defaults for the kind of process opening the pool.
type Profile string

const (
	ProfileServer  Profile = "server"
	ProfileLambda  Profile = "lambda"
	ProfileMigrate Profile = "migrate"
)

// Options tunes the pool and the server session.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string
	// StatementTimeout is sent as the session statement_timeout.
	StatementTimeout time.Duration
}

// Defaults returns the pool settings for p. Lambda sandboxes each hold a
// couple of connections at most; a migration needs exactly one.
func Defaults(p Profile) Options {
	switch p {
	case ProfileLambda:
		return Options{
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxIdleTime: 30 * time.Second,
			ConnMaxLifetime: 15 * time.Minute,
			PingTimeout:     3 * time.Second,
		}
	case ProfileMigrate:
		return Options{
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxIdleTime: 2 * time.Minute,
			ConnMaxLifetime: time.Hour,
			PingTimeout:     5 * time.Second,
		}
	default:
		return Options{
			MaxOpenConns:     10,
			MaxIdleConns:     5,
			ConnMaxIdleTime:  2 * time.Minute,
			ConnMaxLifetime:  time.Hour,
			PingTimeout:      5 * time.Second,
			StatementTimeout: 30 * time.Second,
		}
	}
}

type envOverride struct {
	key   string
	apply func(o *Options, raw string) error
}

var envOverrides = []envOverride{
	{"DB_MAX_OPEN_CONNS", func(o *Options, raw string) (err error) { o.MaxOpenConns, err = strconv.Atoi(raw); return }},
	{"DB_MAX_IDLE_CONNS", func(o *Options, raw string) (err error) { o.MaxIdleConns, err = strconv.Atoi(raw); return }},
	{"DB_CONN_MAX_LIFETIME", func(o *Options, raw string) (err error) { o.ConnMaxLifetime, err = time.ParseDuration(raw); return }},
	{"DB_CONN_MAX_IDLE_TIME", func(o *Options, raw string) (err error) { o.ConnMaxIdleTime, err = time.ParseDuration(raw); return }},
	{"DB_PING_TIMEOUT", func(o *Options, raw string) (err error) { o.PingTimeout, err = time.ParseDuration(raw); return }},
	{"DB_STATEMENT_TIMEOUT", func(o *Options, raw string) (err error) { o.StatementTimeout, err = time.ParseDuration(raw); return }},
	{"DB_APPLICATION_NAME", func(o *Options, raw string) error { o.ApplicationName = raw; return nil }},
}

// OptionsFromEnv applies DB_* overrides on top of base. Unparseable values
// are logged and ignored.
func OptionsFromEnv(base Options) Options {
	for _, ov := range envOverrides {
		raw := strings.TrimSpace(os.Getenv(ov.key))
		if raw == "" {
			continue
		}
		next := base
		if err := ov.apply(&next, raw); err != nil {
			telemetry.Warn("db.env_invalid", map[string]any{"key": ov.key, "error": err.Error()})
			continue
		}
		base = next
	}
	return base
}

var openDB = sql.Open

// Connect opens a pgx-backed pool and pings it. Callers share the result.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	dsn, err := withSessionParams(databaseURL, opts)
	if err != nil {
		return nil, err
	}
	pool, err := openDB("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	configurePool(pool, opts)

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	stats := pool.Stats()
	telemetry.Info("db.connected", map[string]any{
		"application": opts.ApplicationName,
		"max_open":    stats.MaxOpenConnections,
		"open":        stats.OpenConnections,
	})
	return pool, nil
}

// withSessionParams adds application_name and statement_timeout to the DSN.
// pgx passes unknown settings to the server as runtime parameters. Settings
// already in the DSN are left alone.
func withSessionParams(databaseURL string, opts Options) (string, error) {
	type param struct{ key, value string }
	var params []param
	if opts.ApplicationName != "" {
		params = append(params, param{"application_name", opts.ApplicationName})
	}
	if opts.StatementTimeout > 0 {
		params = append(params, param{"statement_timeout", strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)})
	}
	if len(params) == 0 {
		return databaseURL, nil
	}

	if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
		dsn := databaseURL
		for _, p := range params {
			if !strings.Contains(dsn, p.key+"=") {
				dsn += " " + p.key + "=" + p.value
			}
		}
		return dsn, nil
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	q := u.Query()
	for _, p := range params {
		if !q.Has(p.key) {
			q.Set(p.key, p.value)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var shared struct {
	mu sync.Mutex
	db *sql.DB
}

// GetSingleton returns the pool for this Lambda sandbox, connecting on first
// use. A failed connect is retried on the next call.
func GetSingleton(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.db != nil {
		return shared.db, nil
	}
	pool, err := Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	shared.db = pool
	return pool, nil
}

// IsLambdaRuntime reports whether the process runs inside AWS Lambda.
func IsLambdaRuntime() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
}

func configurePool(pool *sql.DB, opts Options) {
	fallback := Defaults(ProfileServer)
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = fallback.MaxOpenConns
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = fallback.MaxIdleConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = fallback.ConnMaxLifetime
	}
	pool.SetMaxOpenConns(opts.MaxOpenConns)
	pool.SetMaxIdleConns(opts.MaxIdleConns)
	pool.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}
