package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelops/incident-engine/internal/api"
	"github.com/sentinelops/incident-engine/internal/cache"
	"github.com/sentinelops/incident-engine/internal/collector"
	"github.com/sentinelops/incident-engine/internal/config"
	"github.com/sentinelops/incident-engine/internal/inference"
	"github.com/sentinelops/incident-engine/internal/knowledge"
	"github.com/sentinelops/incident-engine/internal/metrics"
	"github.com/sentinelops/incident-engine/internal/orchestrator"
	"github.com/sentinelops/incident-engine/internal/patterns"
	"github.com/sentinelops/incident-engine/internal/repo"
	"github.com/sentinelops/incident-engine/internal/safety"
	"github.com/sentinelops/incident-engine/internal/scheduler"
	"github.com/sentinelops/incident-engine/internal/sop"
	"github.com/sentinelops/incident-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting incident-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var valkeyCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			valkeyCloser = provider
		}
	}
	if valkeyCloser != nil {
		defer valkeyCloser.Close()
	}

	influxBackend := repo.NewInfluxMetricsBackend(
		cfg.Telemetry.Influx.URL,
		cfg.Telemetry.Influx.Token,
		cfg.Telemetry.Influx.Org,
		cfg.Telemetry.Influx.Bucket,
		cfg.Telemetry.Influx.Timeout,
	)
	defer influxBackend.Close()

	opsCore := repo.NewOpsCoreClient(
		cfg.Telemetry.OpsCore.BaseURL,
		cfg.Telemetry.OpsCore.EventsPath,
		cfg.Telemetry.OpsCore.AuditPath,
		cfg.Telemetry.OpsCore.Timeout,
	)

	coll := collector.New(utils.ComponentLogger(logger, "collector"), influxBackend, opsCore, opsCore, cfg.Detection.MaxRetries)
	snapshots := collector.NewSnapshotCache(coll)

	packPatterns, err := patterns.LoadPack(cfg.Patterns.Path)
	if err != nil {
		logger.Error("failed to load pattern pack", slog.Any("error", err))
		os.Exit(1)
	}
	matcher := patterns.NewMatcher(logger, packPatterns)

	knowledgeStore, err := repo.OpenBadgerKnowledgeStore(cfg.Knowledge.BadgerPath, logger)
	if err != nil {
		logger.Error("failed to open knowledge store", slog.Any("error", err))
		os.Exit(1)
	}
	defer knowledgeStore.Close()

	weaviateRepo := repo.NewWeaviateKnowledgeRepo(
		cfg.Knowledge.WeaviateEndpoint,
		cfg.Knowledge.WeaviateAPIKey,
		cfg.Knowledge.WeaviateTimeout,
		cacheProvider,
		cfg.Knowledge.SearchCacheTTL,
	)

	var reasoner *repo.ReasonerClient
	if cfg.Inference.APIKey != "" {
		reasoner = repo.NewReasonerClient(cfg.Inference.APIKey, cfg.Inference.BaseURL, cfg.Inference.Timeout)
	} else {
		logger.Warn("no inference API key configured, running deterministic-only")
	}

	var embedder knowledge.Embedder
	if reasoner != nil {
		embedder = reasoner
	}
	store := knowledge.NewStore(logger, knowledgeStore, weaviateRepo, embedder, knowledge.Options{
		QualityGate:       cfg.Knowledge.QualityGate,
		KeywordThreshold:  cfg.Knowledge.KeywordThreshold,
		SemanticThreshold: cfg.Knowledge.SemanticThreshold,
		EmbeddingModel:    cfg.Knowledge.EmbeddingModel,
	})

	// Seed the matcher with patterns learned in previous runs.
	if learned, err := store.LearnedPatterns(context.Background()); err != nil {
		logger.Warn("failed to load learned patterns", slog.Any("error", err))
	} else if len(learned) > 0 {
		matcher.SetLearned(learned)
		logger.Info("loaded learned patterns", slog.Int("count", len(learned)))
	}

	var engineReasoner inference.Reasoner
	if reasoner != nil {
		engineReasoner = reasoner
	}
	engine := inference.NewEngine(logger, matcher, store, engineReasoner, inference.Options{
		HighThreshold: cfg.Inference.HighThreshold,
		Tier1Model:    cfg.Inference.Tier1Model,
		Tier2Model:    cfg.Inference.Tier2Model,
		EvidenceLimit: cfg.Inference.EvidenceLimit,
		MaxRetries:    cfg.Inference.MaxRetries,
	})

	registry, err := sop.NewRegistry(logger, cfg.SOP.Path)
	if err != nil {
		logger.Error("failed to load SOP pack", slog.Any("error", err))
		os.Exit(1)
	}

	gate := safety.NewGate(logger, safety.Options{
		Cooldown:         cfg.Safety.Cooldown,
		BreakerThreshold: cfg.Safety.BreakerThreshold,
		BreakerWindow:    cfg.Safety.BreakerWindow,
	})
	executor := sop.NewExecutor(logger, &sop.LogRunner{Logger: logger})

	incidentStore, err := repo.OpenBadgerIncidentStore(cfg.Orchestrator.IncidentPath, logger)
	if err != nil {
		logger.Error("failed to open incident store", slog.Any("error", err))
		os.Exit(1)
	}
	defer incidentStore.Close()

	notifier := orchestrator.NewWebhookNotifier(logger, cfg.Orchestrator.NotifyWebhook)

	orch := orchestrator.New(
		utils.ComponentLogger(logger, "orchestrator"),
		snapshots,
		engine,
		registry,
		gate,
		executor,
		store,
		matcher,
		incidentStore,
		notifier,
		orchestrator.Options{
			SnapshotTTL:    cfg.Detection.SnapshotTTL,
			Window:         cfg.Detection.Window,
			ApprovalExpiry: cfg.Orchestrator.ApprovalExpiry,
		},
	)

	server := api.NewServer(utils.ComponentLogger(logger, "api"), cfg.Server.Address, orch, incidentStore, store, gate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled && len(cfg.Scheduler.Scopes) > 0 {
		sched := scheduler.New(utils.ComponentLogger(logger, "scheduler"), orch, scheduler.Options{
			Interval:    cfg.Scheduler.Interval,
			Scopes:      cfg.Scheduler.Scopes,
			Concurrency: cfg.Scheduler.Concurrency,
			ScansPerSec: cfg.Scheduler.ScansPerSec,
		})
		go func() {
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler exited", slog.Any("error", err))
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("incident-engine stopped")
}
