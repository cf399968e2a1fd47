package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"letters-backend/internal/barcode"
	"letters-backend/internal/documents"
	"letters-backend/internal/importconfig"
	"letters-backend/internal/letters"
	"letters-backend/internal/progress"
	"letters-backend/internal/queue"
	"letters-backend/internal/registry"
	"letters-backend/internal/services/health"
	"letters-backend/internal/shared/config"
	"letters-backend/internal/shared/server"
	"letters-backend/internal/shared/storage/db"
	"letters-backend/internal/shared/storage/object"
	localstore "letters-backend/internal/shared/storage/object/local"
	s3store "letters-backend/internal/shared/storage/object/s3"
	"letters-backend/internal/shared/telemetry"
	"letters-backend/internal/uploads"
	"letters-backend/internal/workerproc"
)

const (
	uploadsDefaultRegion    = "us-east-1"
	defaultLocalConcurrency = 2
)

// App holds shared dependencies and the HTTP router.
type App struct {
	Config         config.Config
	Router         *gin.Engine
	DB             *sql.DB
	Store          object.ObjectStore
	Queue          queue.Client
	LocalQueue     *queue.LocalClient
	AMQP           *queue.AMQPClient
	Registry       registry.Registry
	Profiles       *importconfig.Catalog
	Progress       progress.Tracker
	Extractor      *barcode.Extractor
	DocumentsRepo  documents.Repo
	LettersRepo    letters.Repo
	Documents      *documents.Service
	Letters        *letters.Service
	BatchProcessor workerproc.Processor
	ImportsHandler *letters.Handler
	UploadsHandler *uploads.Handler
	Health         *health.Service

	closers []io.Closer
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	telemetry.Configure(os.Stdout, cfg.LogLevel)
	ctx := context.Background()

	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB

	if app.Store, err = buildStore(ctx, cfg); err != nil {
		return nil, app.fail(err)
	}
	if app.Registry, err = app.buildRegistry(ctx); err != nil {
		return nil, app.fail(err)
	}
	if app.Profiles, err = importconfig.Load(cfg.ImportProfilesFile); err != nil {
		return nil, app.fail(fmt.Errorf("load import profiles: %w", err))
	}
	if app.Progress, err = app.buildProgress(ctx); err != nil {
		return nil, app.fail(err)
	}

	extractor := barcode.NewExtractor()
	extractor.Separator = cfg.BarcodeSeparator
	extractor.DPI = cfg.BarcodeDPI
	extractor.MaxPages = cfg.BarcodeMaxPages
	extractor.PreviewWidth = cfg.BarcodePreviewWidth
	app.Extractor = extractor

	app.buildServices()

	if err := app.buildQueue(ctx); err != nil {
		return nil, app.fail(err)
	}

	if app.UploadsHandler, err = buildUploads(ctx, cfg); err != nil {
		return nil, app.fail(err)
	}

	app.Health = health.NewService(app.DB, cfg.QueueBackend)
	app.ImportsHandler = letters.NewHandler(app.Letters)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:  cfg,
		Health:  app.Health,
		Imports: app.ImportsHandler,
		Uploads: app.UploadsHandler,
	})

	return app, nil
}

// Close waits for in-process jobs and releases connections.
func (a *App) Close() error {
	if a.LocalQueue != nil {
		a.LocalQueue.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) fail(err error) error {
	if closeErr := a.Close(); closeErr != nil {
		telemetry.Warn("bootstrap.close_failed", map[string]any{"error": closeErr.Error()})
	}
	return err
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_url_empty", map[string]any{"fallback": "memory"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.Defaults(db.ProfileLambda))
		if opts.ApplicationName == "" {
			opts.ApplicationName = "letters-" + os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
		}
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.Defaults(db.ProfileServer))
		if opts.ApplicationName == "" {
			opts.ApplicationName = "letters-" + filepath.Base(os.Args[0])
		}
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_connect_failed", map[string]any{"fallback": "memory", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildRegistry prefers an external registry database, then a YAML fixture,
// then the registry tables of the main database.
func (a *App) buildRegistry(ctx context.Context) (registry.Registry, error) {
	cfg := a.Config
	switch {
	case strings.TrimSpace(cfg.RegistryDSN) != "":
		driver := cfg.RegistryDriver
		if driver == "" {
			driver = registry.DriverPGX
		}
		reg, err := registry.Open(ctx, driver, cfg.RegistryDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, reg.DB)
		return reg, nil
	case strings.TrimSpace(cfg.RegistryFixtureFile) != "":
		reg, err := registry.LoadFixture(cfg.RegistryFixtureFile)
		if err != nil {
			return nil, fmt.Errorf("load registry fixture: %w", err)
		}
		return reg, nil
	case a.DB != nil:
		return &registry.SQLRegistry{DB: a.DB, Driver: registry.DriverPGX}, nil
	default:
		telemetry.Warn("bootstrap.registry_empty", map[string]any{"backend": "memory"})
		return registry.NewMemoryRegistry(nil, nil), nil
	}
}

func (a *App) buildProgress(ctx context.Context) (progress.Tracker, error) {
	cfg := a.Config
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return progress.NewMemoryTracker(), nil
	}
	tracker, err := progress.NewRedisTracker(ctx, progress.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.ProgressTTL,
	})
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.redis_connect_failed", map[string]any{"fallback": "memory", "error": err.Error()})
			return progress.NewMemoryTracker(), nil
		}
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, tracker)
	return tracker, nil
}

func (a *App) buildServices() {
	if a.DB != nil {
		a.DocumentsRepo = &documents.PGRepo{DB: a.DB}
		a.LettersRepo = &letters.PGRepo{DB: a.DB}
	} else {
		a.DocumentsRepo = documents.NewMemoryRepo()
		a.LettersRepo = letters.NewMemoryRepo()
	}

	a.Documents = &documents.Service{
		Store:    a.Store,
		Repo:     a.DocumentsRepo,
		Provider: a.Config.ObjectStoreType,
	}
	a.Letters = &letters.Service{
		Repo:      a.LettersRepo,
		Documents: a.Documents,
		Store:     a.Store,
		Registry:  a.Registry,
		Extractor: a.Extractor,
		Profiles:  a.Profiles,
		Progress:  a.Progress,
	}
	a.BatchProcessor = a.Letters
}

// buildQueue wires the job queue. The in-process backend runs imports on the
// service that enqueued them, so it is attached after the service exists.
func (a *App) buildQueue(ctx context.Context) error {
	cfg := a.Config
	switch cfg.QueueBackend {
	case "sqs":
		region := cfg.AWSRegion
		if region == "" {
			region = uploadsDefaultRegion
		}
		client, err := queue.NewSQSClient(ctx, cfg.SQSQueueURL, region)
		if err != nil {
			return err
		}
		a.Queue = client
	case "amqp":
		client, err := queue.NewAMQPClient(cfg.AMQPURL, cfg.AMQPQueue, 1)
		if err != nil {
			return err
		}
		client.Retryable = workerproc.IsRetryable
		a.AMQP = client
		a.Queue = client
		a.closers = append(a.closers, client)
	default:
		a.LocalQueue = queue.NewLocalClient(workerproc.Handler(a.BatchProcessor), defaultLocalConcurrency)
		a.Queue = a.LocalQueue
	}
	a.Letters.Queue = a.Queue
	return nil
}

func buildUploads(ctx context.Context, cfg config.Config) (*uploads.Handler, error) {
	if cfg.ObjectStoreType != "s3" || strings.TrimSpace(cfg.S3Bucket) == "" {
		return nil, nil
	}
	region := cfg.AWSRegion
	if region == "" {
		region = uploadsDefaultRegion
	}
	return uploads.NewHandler(ctx, region, cfg.S3Bucket, cfg.S3Prefix)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
