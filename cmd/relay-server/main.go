// cmd/relay-server/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	commonaws "form-relay/internal/common/aws"
	"form-relay/internal/common/config"
	"form-relay/internal/common/database"
	"form-relay/internal/common/logger"
	"form-relay/internal/common/observability"
	"form-relay/internal/relay/alert"
	"form-relay/internal/relay/audit"
	"form-relay/internal/relay/dispatch"
	"form-relay/internal/relay/fallback"
	"form-relay/internal/relay/handler"
	"form-relay/internal/relay/ratelimit"
	"form-relay/internal/server"
	"form-relay/internal/storage/bucket"
	"form-relay/pkg/registry"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// --- Logger ---
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting form relay",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("OpenTelemetry metrics disabled", zap.Error(err))
	}
	defer obs.Shutdown(context.Background())

	// --- Form registry ---
	reg := registry.Default()
	if path := os.Getenv("FORM_REGISTRY_PATH"); path != "" {
		if reg, err = registry.LoadRegistry(path); err != nil {
			zapLog.Fatal("failed to load form registry", zap.String("path", path), zap.Error(err))
		}
	}

	var checks []server.Check

	// --- Fallback storage ---
	var writerOpts []fallback.Option
	if cfg.Storage.S3.Enabled {
		s3Client, err := commonaws.NewS3Client(ctx, cfg.Storage.S3)
		if err != nil {
			zapLog.Fatal("failed to create S3 client", zap.Error(err))
		}
		store := bucket.New(s3Client, cfg.Storage.S3.Bucket, cfg.Storage.S3.Region, cfg.Storage.S3.Prefix, log)
		if err := store.EnsureBucket(ctx); err != nil {
			// the local directory stays authoritative; the mirror retries per write
			zapLog.Error("Submission bucket unavailable", zap.String("bucket", store.Bucket()), zap.Error(err))
		}
		writerOpts = append(writerOpts, fallback.WithMirror(store))
	}
	writer := fallback.NewWriter(cfg.Storage.SubmissionsDir, log, writerOpts...)

	// --- Mail dispatcher ---
	mailCfg, err := dispatch.FromSettings(cfg.SMTP)
	if err != nil {
		zapLog.Fatal("invalid mail settings", zap.Error(err))
	}
	dispatcher := dispatch.NewDispatcher(mailCfg, log)
	verifyCtx, cancelVerify := context.WithTimeout(ctx, 10*time.Second)
	if err := dispatcher.Verify(verifyCtx); err != nil {
		zapLog.Warn("Mail transport not reachable at startup", zap.String("provider", mailCfg.Provider), zap.Error(err))
	}
	cancelVerify()

	// --- Audit trail ---
	var sinks []audit.Sink
	if cfg.Database.Postgres.Enabled {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			zapLog.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pg.Close()

		sink := audit.NewPostgresSink(pg.GetDB())
		if err := sink.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("failed to prepare audit table", zap.Error(err))
		}
		sinks = append(sinks, sink)
		checks = append(checks, server.Check{Name: "postgres", Fn: pg.Ping})
	}
	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("failed to create elasticsearch client", zap.Error(err))
		}
		sinks = append(sinks, audit.NewElasticsearchSink(es.Client, cfg.Database.Elasticsearch.Index))
		checks = append(checks, server.Check{Name: "elasticsearch", Fn: es.Ping})
	}
	recorder := audit.NewRecorder(log, sinks...)

	// --- Rate limiting ---
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rdb := database.NewRedis(cfg.Database.Redis)
		defer rdb.Close()
		limiter = ratelimit.NewLimiter(rdb.GetClient(), cfg.RateLimit.Requests, config.GetDuration(cfg.RateLimit.Window), log)
		checks = append(checks, server.Check{Name: "redis", Fn: rdb.Ping})
	}

	// --- Alerts ---
	var notifier alert.Notifier = alert.Nop{}
	if cfg.Alerts.SNS.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Alerts.SNS.Region)
		if err != nil {
			zapLog.Fatal("failed to create SNS client", zap.Error(err))
		}
		notifier = alert.NewSNSNotifier(snsClient, cfg.Alerts.SNS.TopicARN, log)
	}

	// --- HTTP server ---
	h := handler.NewHandler(handler.Dependencies{
		Registry:     reg,
		Persister:    writer,
		Mailer:       dispatcher,
		Audit:        recorder,
		Alerts:       notifier,
		Logger:       log,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	srv := server.New(server.Dependencies{
		Config:        cfg,
		Logger:        log,
		Handler:       h,
		Limiter:       limiter,
		Observability: obs,
		Checks:        checks,
	})

	if err := srv.Run(ctx); err != nil {
		zapLog.Fatal("server failed", zap.Error(err))
	}
	zapLog.Info("Form relay stopped gracefully")
}
