package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	accidenthandler "safetyaudit/internal/accident/handler"
	accidentmetrics "safetyaudit/internal/accident/metrics"
	accidentservice "safetyaudit/internal/accident/service"
	accidentmemory "safetyaudit/internal/accident/store/memory"
	accidentpostgres "safetyaudit/internal/accident/store/postgres"
	audithandler "safetyaudit/internal/audit/handler"
	"safetyaudit/internal/detail"
	detailhandler "safetyaudit/internal/detail/handler"
	directoryclient "safetyaudit/internal/directory/client"
	directorymemory "safetyaudit/internal/directory/memory"
	"safetyaudit/internal/evidence"
	evidencehandler "safetyaudit/internal/evidence/handler"
	evidencememory "safetyaudit/internal/evidence/memory"
	evidences3 "safetyaudit/internal/evidence/s3"
	jwttoken "safetyaudit/internal/jwt_token"
	"safetyaudit/internal/platform/config"
	"safetyaudit/internal/platform/database"
	"safetyaudit/internal/platform/metrics"
	platformredis "safetyaudit/internal/platform/redis"
	ratelimitmetrics "safetyaudit/internal/ratelimit/metrics"
	ratelimitmw "safetyaudit/internal/ratelimit/middleware"
	ratelimitmodels "safetyaudit/internal/ratelimit/models"
	"safetyaudit/internal/ratelimit/store/bucket"
	"safetyaudit/internal/registry/cache"
	registryhandler "safetyaudit/internal/registry/handler"
	registrymetrics "safetyaudit/internal/registry/metrics"
	registryservice "safetyaudit/internal/registry/service"
	registrymemory "safetyaudit/internal/registry/store/memory"
	registrypostgres "safetyaudit/internal/registry/store/postgres"
	httptransport "safetyaudit/internal/transport/http"
	audit "safetyaudit/pkg/platform/audit"
	"safetyaudit/pkg/platform/audit/publisher"
	"safetyaudit/pkg/platform/audit/publishers/kafka"
	auditmemory "safetyaudit/pkg/platform/audit/store/memory"
	auditpostgres "safetyaudit/pkg/platform/audit/store/postgres"
	"safetyaudit/pkg/platform/middleware/auth"
)

const (
	auditBufferSize      = 1024
	memoryEvidenceURL    = "memory://evidence"
	auditTopicPartitions = 3
	auditTopicReplicas   = 1
)

// app owns every long-lived resource. closers run in reverse order.
type app struct {
	router  http.Handler
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// newApp wires collaborators. Unconfigured backends fall back to in-memory
// implementations.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	checks := map[string]httptransport.HealthCheck{}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if db != nil {
		a.closers = append(a.closers, db.Close)
		if err := database.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		checks["database"] = db.PingContext
		logger.InfoContext(ctx, "using postgres storage", "driver", cfg.Database.Driver)
	} else {
		logger.WarnContext(ctx, "no database configured, using in-memory storage")
	}

	auditPublisher, err := newAuditPublisher(ctx, a, cfg.Kafka, db, logger)
	if err != nil {
		return nil, err
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	var (
		stats   cache.StatsCache
		buckets ratelimitmw.BucketStore
	)
	if redisClient != nil {
		a.closers = append(a.closers, redisClient.Close)
		checks["redis"] = redisClient.Health
		stats = cache.NewRedisStatsCache(redisClient.Client, cache.WithTTL(cfg.Redis.StatsTTL))
		buckets = bucket.NewRedisBucketStore(redisClient.Client)
	} else {
		stats = cache.NewInMemoryStatsCache()
		buckets = bucket.NewInMemoryBucketStore()
	}

	evidenceStore, err := newEvidenceStore(ctx, cfg.S3, logger)
	if err != nil {
		return nil, err
	}

	var directory accidentservice.PersonDirectory
	if cfg.Directory.BaseURL != "" {
		directory = directoryclient.New(cfg.Directory.BaseURL,
			directoryclient.WithLogger(logger),
			directoryclient.WithTimeout(cfg.Directory.Timeout),
			directoryclient.WithRetryCount(cfg.Directory.RetryCount),
			directoryclient.WithFailureThreshold(cfg.Directory.FailureThreshold),
		)
	} else {
		logger.WarnContext(ctx, "no person directory configured, using in-memory directory")
		directory = directorymemory.NewInMemory()
	}

	var (
		documents registryservice.DocumentStore
		accidents accidentservice.Store
	)
	if db != nil {
		documents = registrypostgres.NewPostgres(db)
		accidents = accidentpostgres.NewPostgres(db)
	} else {
		documents = registrymemory.NewInMemory()
		accidents = accidentmemory.NewInMemory()
	}

	registryMetrics := registrymetrics.New(reg)
	registryOpts := []registryservice.Option{
		registryservice.WithLogger(logger),
		registryservice.WithAuditPublisher(auditPublisher),
		registryservice.WithMetrics(registryMetrics),
	}
	accidentRegistry, err := registryservice.New(registryservice.AccidentConfig(), documents, registryOpts...)
	if err != nil {
		return nil, fmt.Errorf("accident registry: %w", err)
	}
	trainingRegistry, err := registryservice.New(registryservice.TrainingConfig(), documents, registryOpts...)
	if err != nil {
		return nil, fmt.Errorf("training registry: %w", err)
	}

	accidentService := accidentservice.New(accidents, directory,
		accidentservice.WithLogger(logger),
		accidentservice.WithAuditPublisher(auditPublisher),
		accidentservice.WithMetrics(accidentmetrics.New(reg)),
	)

	sessions := detail.NewSessions(accidentRegistry, detail.AccidentLookup{Accidents: accidentService},
		detail.WithControllerOptions(
			detail.WithLogger(logger),
			detail.WithStatsCache(stats),
		),
	)
	details := detailhandler.New(sessions, accidentRegistry.Config().RequestFromPayload, logger)

	a.router = httptransport.NewRouter(httptransport.Config{
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout,
		Authenticate:   newAuthenticator(cfg.Auth, logger),
		RateLimit:      newRateLimiter(cfg.RateLimit, buckets, logger, reg).Handler,
		Metrics:        metrics.NewHTTP(reg),
		Gatherer:       reg,
		HealthChecks:   checks,
		Handlers: []httptransport.Registrar{
			accidenthandler.New(accidentService, logger, accidenthandler.WithSubroutes(details.Routes), accidenthandler.WithDeleteListener(sessions)),
			registryhandler.New(logger,
				[]registryhandler.Registry{accidentRegistry, trainingRegistry},
				registryhandler.WithStatsCache(stats),
				registryhandler.WithWriteListener(sessions),
			),
			evidencehandler.New(
				evidence.NewUploader(evidenceStore, evidence.WithLogger(logger)),
				evidenceStore, logger, cfg.Server.MaxUploadBytes,
			),
			audithandler.New(auditPublisher, logger),
		},
	})
	return a, nil
}

func newAuditPublisher(ctx context.Context, a *app, cfg config.KafkaConfig, db *sql.DB, logger *slog.Logger) (*publisher.Publisher, error) {
	var store audit.Store
	if db != nil {
		store = auditpostgres.New(db)
	} else {
		store = auditmemory.NewInMemoryStore()
	}

	opts := []publisher.Option{
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(logger),
	}
	if len(cfg.Brokers) > 0 {
		sink, err := kafka.New(cfg.Brokers, cfg.Topic)
		if err != nil {
			return nil, fmt.Errorf("kafka audit sink: %w", err)
		}
		a.closers = append(a.closers, func() error {
			sink.Close()
			return nil
		})
		if err := sink.EnsureTopic(ctx, auditTopicPartitions, auditTopicReplicas); err != nil {
			return nil, fmt.Errorf("kafka audit sink: %w", err)
		}
		opts = append(opts, publisher.WithSink(sink))
		logger.InfoContext(ctx, "mirroring audit events to kafka", "topic", cfg.Topic)
	}

	p := publisher.NewPublisher(store, opts...)
	a.closers = append(a.closers, p.Close)
	return p, nil
}

func newEvidenceStore(ctx context.Context, cfg config.S3Config, logger *slog.Logger) (evidence.Store, error) {
	if cfg.Bucket == "" {
		logger.WarnContext(ctx, "no evidence bucket configured, keeping evidence in memory")
		return evidencememory.NewInMemory(memoryEvidenceURL), nil
	}
	store, err := evidences3.New(ctx, evidences3.Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		UsePathStyle:    cfg.UsePathStyle,
		PresignTTL:      cfg.PresignTTL,
	}, evidences3.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("evidence store: %w", err)
	}
	return store, nil
}

// newAuthenticator verifies bearer tokens unless auth is disabled, in which
// case the owner comes from a trusted header.
func newAuthenticator(cfg config.AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.Disabled {
		return auth.TrustOwnerHeader(logger)
	}
	tokens := jwttoken.NewJWTService(cfg.SigningKey, cfg.Issuer, cfg.Audience)
	return auth.RequireOwner(jwttoken.NewValidator(tokens), logger)
}

func newRateLimiter(cfg config.RateLimitConfig, store ratelimitmw.BucketStore, logger *slog.Logger, reg prometheus.Registerer) *ratelimitmw.Middleware {
	return ratelimitmw.New(store, logger,
		ratelimitmw.WithDisabled(cfg.Disabled),
		ratelimitmw.WithMetrics(ratelimitmetrics.New(reg)),
		ratelimitmw.WithLimit(ratelimitmodels.ClassRead, ratelimitmodels.Limit{Requests: cfg.Reads, Window: cfg.Window}),
		ratelimitmw.WithLimit(ratelimitmodels.ClassWrite, ratelimitmodels.Limit{Requests: cfg.Writes, Window: cfg.Window}),
		ratelimitmw.WithLimit(ratelimitmodels.ClassUpload, ratelimitmodels.Limit{Requests: cfg.Uploads, Window: cfg.Window}),
	)
}
