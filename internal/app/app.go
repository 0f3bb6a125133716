// Package app wires configuration into a running monitor: storage backend,
// Redis, the Google Ads client, the pipeline and the HTTP surface.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/adchange-monitor/internal/api"
	"github.com/ignite/adchange-monitor/internal/auth"
	"github.com/ignite/adchange-monitor/internal/classifier"
	"github.com/ignite/adchange-monitor/internal/config"
	"github.com/ignite/adchange-monitor/internal/googleads"
	"github.com/ignite/adchange-monitor/internal/ledger"
	"github.com/ignite/adchange-monitor/internal/performance"
	"github.com/ignite/adchange-monitor/internal/pipeline"
	"github.com/ignite/adchange-monitor/internal/pkg/distlock"
	"github.com/ignite/adchange-monitor/internal/pkg/logger"
	"github.com/ignite/adchange-monitor/internal/records"
	"github.com/ignite/adchange-monitor/internal/report"
	"github.com/ignite/adchange-monitor/internal/repository/postgres"
	"github.com/ignite/adchange-monitor/internal/storage"
	"github.com/ignite/adchange-monitor/internal/worker"
)

// RunLockKey names the lock shared by every run trigger.
const RunLockKey = "adchange-monitor:run"

// App is a fully wired monitor.
type App struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Report   *report.Renderer
	Health   *api.HealthChecker

	db       *sql.DB
	redis    *redis.Client
	s3Client *s3.Client
}

// tables are the two logical tables on the configured backend.
type tables struct {
	records storage.Table
	ledger  storage.Table
}

// New builds the App. Connections opened here are released by Close.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Redis.Enabled() {
		client, err := newRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
	}

	t, err := a.openTables(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	tokens, err := auth.NewTokenSource(cfg.GoogleAds, nil)
	if err != nil {
		a.Close()
		return nil, err
	}
	ads := googleads.NewClient(cfg.GoogleAds, tokens, googleads.WithQueryLimit(cfg.Monitoring.QueryLimit))

	var archive pipeline.Archiver
	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		if err := a.ensureS3(ctx); err != nil {
			a.Close()
			return nil, err
		}
		archive = storage.NewS3Archive(a.s3Client, cfg.Archive.S3Bucket, cfg.Archive.Prefix)
	}

	var ledgerOpts []ledger.Option
	if a.redis != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithRedisCache(a.redis, ""))
	}

	a.Pipeline = pipeline.New(pipeline.Deps{
		Fetcher:     pipeline.NewFetcher(ads, archive),
		Classifier:  classifier.New(cfg.Monitoring.IncludeOperation),
		Ledger:      ledger.NewSheetLedger(t.ledger, ledgerOpts...),
		Records:     records.NewBook(t.records),
		Snapshotter: performance.NewSnapshotter(ads),
		Lock:        distlock.NewLock(a.redis, a.db, RunLockKey, cfg.Polling.LockTTL()),
	}, pipeline.Settings{
		Channels: Channels(cfg.Monitoring.Channels),
		Window:   cfg.Monitoring.Window(),
		Lookback: cfg.Monitoring.Lookback(),
	})

	a.Report, err = report.New("")
	if err != nil {
		a.Close()
		return nil, err
	}

	var bucket api.BucketHeader
	if a.s3Client != nil {
		bucket = a.s3Client
	}
	a.Health = api.NewHealthChecker(a.db, a.redis, bucket, cfg.Archive.S3Bucket, a.Pipeline)

	logger.Info("monitor wired",
		"storage", cfg.Storage.Type,
		"redis", a.redis != nil,
		"archive", archive != nil,
		"channels", len(cfg.Monitoring.Channels),
		"window_days", cfg.Monitoring.WindowDays,
	)
	return a, nil
}

// Channels converts the configured channels.
func Channels(in []config.ChannelConfig) []classifier.Channel {
	out := make([]classifier.Channel, 0, len(in))
	for _, c := range in {
		out = append(out, classifier.Channel{
			Category:       c.Category,
			ResourceTypes:  c.ResourceTypes,
			RelevantFields: c.RelevantFields,
		})
	}
	return out
}

func newRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var client *redis.Client
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func (a *App) openTables(ctx context.Context) (tables, error) {
	sc := a.Config.Storage
	switch sc.Type {
	case "memory":
		return tables{
			records: storage.NewMemoryTable(sc.RecordsSheet),
			ledger:  storage.NewMemoryTable(sc.LedgerSheet),
		}, nil

	case "local":
		rt, err := storage.NewLocalTable(sc.LocalPath, sc.RecordsSheet)
		if err != nil {
			return tables{}, err
		}
		lt, err := storage.NewLocalTable(sc.LocalPath, sc.LedgerSheet)
		if err != nil {
			return tables{}, err
		}
		return tables{records: rt, ledger: lt}, nil

	case "postgres":
		if sc.DatabaseURL == "" {
			return tables{}, fmt.Errorf("storage type postgres requires database_url")
		}
		db, err := sql.Open("postgres", sc.DatabaseURL)
		if err != nil {
			return tables{}, fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		a.db = db

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return tables{}, fmt.Errorf("connecting to database: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return tables{}, err
		}
		return tables{
			records: postgres.NewSheetTable(db, sc.RecordsSheet),
			ledger:  postgres.NewSheetTable(db, sc.LedgerSheet),
		}, nil

	case "aws", "dynamodb":
		if sc.DynamoDBTable == "" {
			return tables{}, fmt.Errorf("storage type aws requires dynamodb_table")
		}
		awsCfg, err := storage.LoadAWSConfig(ctx, awsOptions(sc))
		if err != nil {
			return tables{}, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return tables{
			records: storage.NewDynamoTable(client, sc.DynamoDBTable, sc.RecordsSheet),
			ledger:  storage.NewDynamoTable(client, sc.DynamoDBTable, sc.LedgerSheet),
		}, nil

	default:
		return tables{}, fmt.Errorf("unknown storage type %q", sc.Type)
	}
}

func (a *App) ensureS3(ctx context.Context) error {
	if a.s3Client != nil {
		return nil
	}
	awsCfg, err := storage.LoadAWSConfig(ctx, awsOptions(a.Config.Storage))
	if err != nil {
		return err
	}
	a.s3Client = s3.NewFromConfig(awsCfg)
	return nil
}

func awsOptions(sc config.StorageConfig) storage.AWSOptions {
	return storage.AWSOptions{
		Region:          sc.AWSRegion,
		Profile:         sc.GetAWSProfile(),
		AccessKeyID:     sc.AWSAccessKey,
		SecretAccessKey: sc.AWSSecretKey,
	}
}

// Router builds the HTTP surface.
func (a *App) Router() *chi.Mux {
	h := api.NewHandlers(a.Pipeline, a.Report, a.Config.Monitoring.Window())
	return api.SetupRoutes(h, a.Health, a.Config.Server.AllowedOrigins)
}

// Server builds the HTTP server for the configured address.
func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.Config.Server.GetHost(), a.Config.Server.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Runs are synchronous; a backfill can take minutes.
		WriteTimeout: 15 * time.Minute,
	}
}

// Worker builds the scheduled cycle worker.
func (a *App) Worker() *worker.CycleWorker {
	return worker.NewCycleWorker(a.Pipeline, a.Config.Polling.Interval(), a.Config.Polling.RunOnStart)
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
