// Package main is the Temporal worker of the funding discovery service. It
// hosts the discovery workflow and activities, the provider adapters and,
// when Kafka is enabled, the search request listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/northstar/funding-discovery/internal/antispam"
	"github.com/northstar/funding-discovery/internal/config"
	"github.com/northstar/funding-discovery/internal/database"
	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/events"
	"github.com/northstar/funding-discovery/internal/observability"
	"github.com/northstar/funding-discovery/internal/pipeline"
	"github.com/northstar/funding-discovery/internal/providers"
	"github.com/northstar/funding-discovery/internal/providers/brave"
	"github.com/northstar/funding-discovery/internal/providers/perplexica"
	"github.com/northstar/funding-discovery/internal/providers/searxng"
	"github.com/northstar/funding-discovery/internal/providers/serper"
	"github.com/northstar/funding-discovery/internal/providers/tavily"
	"github.com/northstar/funding-discovery/internal/registry"
	"github.com/northstar/funding-discovery/internal/repository"
	"github.com/northstar/funding-discovery/internal/resilience"
	"github.com/northstar/funding-discovery/internal/scoring"
	"github.com/northstar/funding-discovery/internal/temporal"
	"github.com/northstar/funding-discovery/internal/temporal/activities"
	"github.com/northstar/funding-discovery/internal/temporal/workflows"
)

const (
	metricsNamespace = "funding_discovery"

	// usageWindow is the rolling window of the provider daily quotas.
	usageWindow = 24 * time.Hour
)

// quotaAdapter is an adapter whose daily quota can be restored from the
// usage ledger. Every vendor adapter embeds providers.Base and satisfies it.
type quotaAdapter interface {
	providers.Adapter
	Usage() *providers.UsageTracker
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("funding-discovery worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	metrics := observability.NewMetrics(metricsNamespace)

	sessionRepo := repository.NewPgSessionRepository(db)
	domainRepo := repository.NewPgDomainRepository(db)
	usageRepo := repository.NewPgUsageRepository(db)
	discoveryStore := repository.NewPgDiscoveryStore(db)

	// Providers, each behind its own breaker, retrier and rate limiter.
	breakers := resilience.NewBreakerRegistry(resilience.BreakerConfig{
		WindowSize:           cfg.Resilience.WindowSize,
		MinimumCalls:         cfg.Resilience.MinimumCalls,
		FailureRateThreshold: cfg.Resilience.FailureRateThreshold,
		OpenDuration:         cfg.Resilience.OpenDuration,
	})
	breakers.OnStateChange(func(name string, s resilience.State) {
		metrics.RecordBreakerState(name, int(s))
		logger.Warn().Str("provider", name).Str("state", s.String()).Msg("circuit breaker state changed")
	})

	providerRegistry, timeouts := buildProviders(ctx, cfg, breakers, usageRepo, metrics, logger)
	if providerRegistry.Len() == 0 {
		return errors.New("no search provider enabled")
	}

	orchestrator := providers.NewOrchestrator(providerRegistry, providers.OrchestratorConfig{
		TotalTimeout:     cfg.Discovery.TotalTimeout,
		ProviderTimeouts: timeouts,
	}, usageRepo, logger, metrics)

	// Result pipeline.
	domains := registry.New(domainRepo, registry.Config{
		CacheSize: cfg.Registry.BlacklistCacheSize,
		CacheTTL:  cfg.Registry.BlacklistCacheTTL,
	}, logger)
	processor := pipeline.NewProcessor(
		domains,
		antispam.NewFilter(logger),
		scoring.NewScorer(cfg.Discovery.Threshold(), scoring.DefaultJudges()...),
		discoveryStore,
		pipeline.Config{SpamTLDs: cfg.Discovery.SpamTLDs},
		logger,
		metrics,
	)

	var publisher activities.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewPublisher(events.PublisherConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topics:       kafkaTopics(cfg.Kafka.Topics),
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			MaxAttempts:  cfg.Kafka.MaxAttempts,
		}, logger, metrics)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close event publisher")
			}
		}()
		publisher = kafkaPublisher
	}

	discoveryActivities := activities.NewDiscoveryActivities(
		sessionRepo,
		orchestrator,
		processor,
		publisher,
		metrics,
		cfg.Discovery.MaxResultsPerQuery,
	)

	// Temporal.
	temporalCfg := temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		TaskQueue: cfg.Temporal.TaskQueue,
	}
	temporalClient, err := temporal.NewClient(temporalCfg, observability.NewTemporalLogger(logger))
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	workflowClient := temporal.NewDiscoveryWorkflowClient(temporalClient, temporalCfg)
	defer workflowClient.Close()

	workerManager, err := temporal.NewWorkerManager(temporalClient, temporal.WorkerConfig{
		TaskQueue: cfg.Temporal.TaskQueue,
	}, logger)
	if err != nil {
		return fmt.Errorf("create temporal worker: %w", err)
	}
	workerManager.RegisterDiscoveryWorkflow(workflows.DiscoveryWorkflow)
	workerManager.RegisterActivity(discoveryActivities)

	if cfg.Discovery.Nightly.Enabled {
		err := workflowClient.StartNightly(ctx, cfg.Discovery.Nightly.Cron, temporal.DiscoveryInput{
			KeywordQuery:       cfg.Discovery.Nightly.KeywordQuery,
			AIQuery:            cfg.Discovery.Nightly.AIQuery,
			MaxResultsPerQuery: cfg.Discovery.MaxResultsPerQuery,
		})
		if err != nil {
			return fmt.Errorf("schedule nightly discovery: %w", err)
		}
		logger.Info().Str("cron", cfg.Discovery.Nightly.Cron).Msg("nightly discovery scheduled")
	}

	errCh := make(chan error, 3)

	if cfg.Kafka.Enabled {
		listener := events.NewRequestListener(events.ListenerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topics.SearchRequests,
			GroupID: cfg.Kafka.GroupID,
		}, startFromRequest(workflowClient), logger, metrics)
		defer func() {
			if err := listener.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close search request listener")
			}
		}()
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("search request listener: %w", err)
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddress(),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	go func() {
		if err := workerManager.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	logger.Info().
		Str("task_queue", workerManager.TaskQueue()).
		Int("providers", providerRegistry.Len()).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("funding-discovery worker ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("worker error")
		stop()
		return err
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("funding-discovery worker stopped")
	return nil
}

// buildProviders creates the enabled adapters, restores their daily usage
// from the ledger and wraps each in a guard. It returns the per-provider
// search timeouts for the orchestrator.
func buildProviders(
	ctx context.Context,
	cfg *config.Config,
	breakers *resilience.BreakerRegistry,
	usage *repository.PgUsageRepository,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (*providers.Registry, map[domain.ProviderID]time.Duration) {
	reg := providers.NewRegistry()
	timeouts := make(map[domain.ProviderID]time.Duration)

	pc := cfg.Providers
	candidates := []struct {
		cfg config.ProviderConfig
		build func(providers.Config) quotaAdapter
	}{
		{pc.Brave, func(c providers.Config) quotaAdapter { return brave.New(c) }},
		{pc.SearXNG, func(c providers.Config) quotaAdapter { return searxng.New(c) }},
		{pc.Serper, func(c providers.Config) quotaAdapter { return serper.New(c) }},
		{pc.Tavily, func(c providers.Config) quotaAdapter { return tavily.New(c) }},
		{pc.Perplexica, func(c providers.Config) quotaAdapter { return perplexica.New(c) }},
	}

	since := time.Now().Add(-usageWindow)
	for _, c := range candidates {
		if !c.cfg.Enabled {
			continue
		}
		adapter := c.build(adapterConfig(c.cfg))
		id := adapter.ProviderID()

		calls, err := usage.CallsSince(ctx, id, since)
		if err != nil {
			logger.Warn().Err(err).Str("provider", string(id)).Msg("failed to restore provider usage, starting from zero")
		} else {
			adapter.Usage().Restore(calls)
		}

		guard := resilience.NewGuard(resilience.GuardConfig{
			Provider: id,
			Breaker:  breakers.Get(string(id)),
			Limiter:  resilience.NewRateLimiter(c.cfg.RateLimit, c.cfg.Burst),
			Retry: resilience.RetryConfig{
				MaxAttempts:    cfg.Resilience.MaxAttempts,
				InitialBackoff: cfg.Resilience.InitialBackoff,
				Multiplier:     cfg.Resilience.BackoffMultiplier,
			},
			Logger:  logger,
			Metrics: metrics,
		})
		reg.Register(providers.WithGuard(adapter, guard))
		timeouts[id] = c.cfg.Timeout

		logger.Info().
			Str("provider", string(id)).
			Int("daily_limit", c.cfg.DailyLimit).
			Int("current_usage", adapter.CurrentUsage()).
			Msg("search provider enabled")
	}
	return reg, timeouts
}

// adapterConfig maps a provider's settings onto the adapter config. The
// configured timeout bounds each HTTP attempt as well as the orchestrator's
// per-provider deadline.
func adapterConfig(c config.ProviderConfig) providers.Config {
	return providers.Config{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Timeout:     c.Timeout,
		DailyLimit:  c.DailyLimit,
		MaxResults:  c.MaxResults,
		SearchDepth: c.SearchDepth,
	}
}

func kafkaTopics(t config.KafkaTopicsConfig) events.Topics {
	return events.Topics{
		SearchRequests:   t.SearchRequests,
		RawResults:       t.RawResults,
		ValidatedResults: t.ValidatedResults,
		WorkflowErrors:   t.WorkflowErrors,
	}
}

// startFromRequest starts one discovery workflow per consumed search request.
func startFromRequest(c *temporal.DiscoveryWorkflowClient) events.StartFunc {
	return func(ctx context.Context, req domain.SearchRequestEvent) (string, error) {
		workflowID, _, err := c.Start(ctx, temporal.DiscoveryInput{
			RequestID:          req.RequestID,
			SessionID:          req.SessionID,
			SessionType:        req.SessionType,
			KeywordQuery:       req.KeywordQuery,
			AIQuery:            req.AIQuery,
			MaxResultsPerQuery: req.MaxResultsPerQuery,
		})
		return workflowID, err
	}
}
