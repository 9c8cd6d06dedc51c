package app

import (
	"fmt"
	"os"

	"asset-pipeline/internal/assets"
	"asset-pipeline/internal/audit"
	"asset-pipeline/internal/auth"
	"asset-pipeline/internal/config"
	"asset-pipeline/internal/dispatch"
	"asset-pipeline/internal/download"
	"asset-pipeline/internal/http"
	"asset-pipeline/internal/lock"
	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/metrics"
	"asset-pipeline/internal/queue"
	"asset-pipeline/internal/repository/postgres"
	"asset-pipeline/internal/signer"
	"asset-pipeline/internal/storage/s3"
	"asset-pipeline/internal/watermark"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "asset_pipeline"

// Initialize wires every dependency of the API process. The caller owns the
// returned Service and must Close it.
func Initialize(cfg *config.Config, log *logger.Logger) (*Service, error) {
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	objects, err := s3.NewClient(&cfg.AWS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	locker, closeLock, err := lock.Connect(cfg.Redis, lockOwner())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(metricsNamespace, reg)
	if err != nil {
		_ = closeLock()
		db.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	assetRepo := postgres.NewAssetRepository(db)
	jobRepo := postgres.NewJobRepository(db)
	sequenceRepo := postgres.NewSequenceRepository(db)

	urlSigner := signer.New(cfg.Auth.SigningSecret, cfg.Server.PublicBaseURL)
	workerTokens := auth.NewWorkerTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.WorkerTokenTTL)
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	dispatcher := dispatch.New(cfg.Worker.WakeURL, cfg.Server.PublicBaseURL, cfg.Worker.WakeTimeout, m, log)
	if !dispatcher.Enabled() {
		log.Warn("worker wake url not set; jobs wait for the next externally triggered drain")
	}

	queueService := queue.NewService(jobRepo, assetRepo, urlSigner, objects, queue.Options{
		MaxAttempts: cfg.Queue.MaxAttempts,
		Lease:       cfg.Queue.LeaseDuration,
		URLTTL:      cfg.Signer.WorkerTTL,
	}, m, log)

	assetService := assets.NewService(assets.Deps{
		Store:             assetRepo,
		Codes:             sequenceRepo,
		Objects:           objects,
		Jobs:              queueService,
		Waker:             dispatcher,
		Tokens:            workerTokens,
		Metrics:           m,
		Log:               log,
		UploadConcurrency: cfg.App.UploadConcurrency,
	})

	gate := download.NewGate(
		assetRepo,
		postgres.NewSubscriberRepository(db),
		objects,
		watermark.New(cfg.Watermark.Anchor, cfg.Watermark.HashIdentity),
		postgres.NewEngagementRepository(db),
		m,
		log,
	)

	auditLogger := audit.NewLogger(postgres.NewAuditRepository(db), log)

	server := http.NewServer(&http.ServerDependencies{
		Config:         cfg,
		Logger:         log,
		Metrics:        m,
		AuthMiddleware: auth.NewMiddleware(jwtService, workerTokens),
		Assets:         assetService,
		Queue:          queueService,
		Downloads:      gate,
		Signer:         urlSigner,
		Objects:        objects,
		AuditLogger:    auditLogger,
	})

	sweeper := queue.NewSweeper(jobRepo, locker, dispatcher, workerTokens, cfg.Queue.SweepInterval, m, log)

	return &Service{
		config:    cfg,
		log:       log,
		db:        db,
		server:    server,
		sweeper:   sweeper,
		closeLock: closeLock,
	}, nil
}

func lockOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "assetd"
	}
	return host + "-" + uuid.NewString()
}
