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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plangen/internal/adapter/repo"
	"plangen/internal/dispatch"
	"plangen/internal/infra"
	"plangen/internal/infra/credentials"
	"plangen/internal/metrics"
	"plangen/internal/providers/genai"
	"plangen/internal/validate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobStore(runner, cfg.JobTTL)
	cache := repo.NewCacheRepo(runner)

	credStore := credentials.NewStore(runner)
	records, err := credStore.List(ctx, credentials.ProviderGemini)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to load credentials")
	}
	credPool := credentials.NewPool(records, credentials.PoolOptions{
		Cooldown: cfg.CredentialCooldown,
		Store:    credStore,
		Logger:   logger,
	})
	if credPool.Size() == 0 {
		logger.Warn().Msg("worker: no credentials configured; jobs will fail until apikey adds one")
	}

	allowlist, err := loadAllowlist(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to load allowlist")
	}
	if allowlist != nil {
		logger.Info().
			Str("field", allowlist.Field).
			Int("identifiers", len(allowlist.Allowed)).
			Msg("worker: identifier allowlist active")
	}

	httpClient := &http.Client{Timeout: cfg.AttemptTimeout}
	client := genai.NewClient(genai.Options{
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: httpClient,
		Logger:     &logger,
	})

	executor := &dispatch.Executor{
		Creds:          credPool,
		Upstream:       client,
		Checker:        &validate.Checker{},
		Allowlist:      allowlist,
		Jobs:           jobs,
		Backoff:        dispatch.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		AttemptTimeout: cfg.AttemptTimeout,
		Cooldown:       cfg.CredentialCooldown,
		Logger:         logger,
	}
	worker := &dispatch.Worker{
		Jobs:         jobs,
		Cache:        cache,
		Exec:         executor,
		Count:        cfg.WorkerCount,
		PollInterval: cfg.JobPollInterval,
		TTL:          dispatch.TTLPolicy{Plans: cfg.CacheTTLPlans, Default: cfg.CacheTTLDefault},
		Logger:       logger,
	}
	sweeper := &dispatch.Sweeper{
		Jobs:         jobs,
		Cache:        cache,
		Interval:     cfg.SweepInterval,
		StaleTimeout: cfg.JobStaleTimeout,
		Logger:       logger,
	}

	go sweeper.Run(ctx)
	go observeCredentials(ctx, credPool)
	go serveOps(ctx, cfg, logger)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// loadAllowlist builds the identifier allowlist when one is configured.
// Without ALLOWLIST_FIELD the post-check stays off and payload identifiers
// pass through as generated.
func loadAllowlist(cfg *infra.Config) (*validate.Allowlist, error) {
	if cfg.AllowlistField == "" {
		return nil, nil
	}
	if cfg.AllowlistFile != "" {
		return validate.NewAllowlistFromFile(cfg.AllowlistField, cfg.AllowlistFile)
	}
	if len(cfg.AllowlistIDs) == 0 {
		return nil, fmt.Errorf("ALLOWLIST_FIELD is set but neither ALLOWLIST_FILE nor ALLOWLIST_IDS names any identifiers")
	}
	return &validate.Allowlist{Field: cfg.AllowlistField, Allowed: cfg.AllowlistIDs}, nil
}

// observeCredentials keeps the availability gauge current.
func observeCredentials(ctx context.Context, pool *credentials.Pool) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.CredentialsAvailable.Set(float64(pool.Available()))
		}
	}
}

// serveOps exposes /metrics and /healthz for the worker process.
func serveOps(ctx context.Context, cfg *infra.Config, logger infra.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	server := infra.NewHTTPServer(cfg, mux)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Msgf("worker: ops endpoint on %s", server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("worker: ops endpoint failed")
	}
}
