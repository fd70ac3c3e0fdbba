package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/xonelabs/xonebot/internal/api/router"
	"github.com/xonelabs/xonebot/internal/backend"
	"github.com/xonelabs/xonebot/internal/carrier"
	appconfig "github.com/xonelabs/xonebot/internal/config"
	"github.com/xonelabs/xonebot/internal/http/handlers"
	"github.com/xonelabs/xonebot/internal/memory"
	"github.com/xonelabs/xonebot/internal/observability/metrics"
	"github.com/xonelabs/xonebot/internal/routing"
	"github.com/xonelabs/xonebot/internal/tenancy"
	"github.com/xonelabs/xonebot/pkg/logging"
)

var errNoBackends = errors.New("no generation backends configured")

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting xonebot gateway",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Metrics registry, exposed on /metrics.
	registry := prometheus.NewRegistry()
	gatewayMetrics := metrics.NewGatewayMetrics(registry)

	// Conversation memory on Redis.
	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	memoryStore := memory.NewStore(redisClient,
		memory.WithTTL(cfg.SessionTTL),
		memory.WithDefaultLanguage(cfg.DefaultLanguage),
	)

	// Tenant directory and number store on PostgreSQL. Without a database
	// the gateway runs with in-memory number state and an empty registry.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory number store")
	}
	tenantStore := tenancy.NewPGStore(db)

	var numberStore carrier.NumberStore = carrier.NewMemoryNumberStore()
	if db != nil {
		numberStore = carrier.NewPGNumberStore(db)
	}

	// Carrier providers. Simulation mode swaps in mock providers with the
	// same contract so the orchestration path stays identical.
	providers, err := buildProviders(cfg, logger)
	if err != nil {
		logger.Error("failed to configure carrier providers", "error", err)
		os.Exit(1)
	}

	callbacks := carrier.CallbackTargets{
		VoiceURL:   strings.TrimRight(cfg.PublicBaseURL, "/") + "/webhooks/voice",
		MessageURL: strings.TrimRight(cfg.PublicBaseURL, "/") + "/webhooks/chat",
	}
	orchestrator, err := carrier.NewOrchestrator(carrier.OrchestratorConfig{
		Providers:           providers,
		RegionalPriority:    cfg.RegionalPriority(),
		UniversalNumber:     cfg.UniversalNumber,
		ForwardingReceivers: cfg.ForwardingReceivers,
		Callbacks:           callbacks,
		Store:               numberStore,
		Costs:               tenantStore,
		Logger:              logger,
		Metrics:             gatewayMetrics,
	})
	if err != nil {
		logger.Error("failed to build carrier orchestrator", "error", err)
		os.Exit(1)
	}

	// Generation backends and the fallback router.
	backendRouter, err := buildBackendRouter(ctx, cfg, logger, gatewayMetrics)
	if err != nil {
		logger.Error("failed to build backend router", "error", err)
		os.Exit(1)
	}

	engine := routing.NewEngine(memoryStore, tenantStore, tenantStore, backendRouter, orchestrator, routing.EngineConfig{
		UniversalNumber: cfg.UniversalNumber,
	}, logger)

	webhookHandler := handlers.NewWebhookHandler(engine, logger, gatewayMetrics)
	numbersHandler := handlers.NewNumbersHandler(orchestrator, memoryStore, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		Webhooks:           webhookHandler,
		Numbers:            numbersHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminToken:         cfg.AdminToken,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildProviders(cfg *appconfig.Config, logger *logging.Logger) ([]carrier.Provider, error) {
	if cfg.SimulationMode {
		logger.Warn("carrier simulation mode enabled, using mock providers")
		return []carrier.Provider{
			carrier.NewMockProvider("twilio", time.Now().UnixNano()),
			carrier.NewMockProvider("vonage", time.Now().UnixNano()+1),
		}, nil
	}

	var providers []carrier.Provider
	if cfg.TwilioAccountSID != "" {
		twilio, err := carrier.NewTwilioProvider(carrier.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			BaseURL:    cfg.TwilioBaseURL,
			Timeout:    cfg.CarrierTimeout,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, twilio)
	}
	if cfg.VonageAPIKey != "" {
		vonage, err := carrier.NewVonageProvider(carrier.VonageConfig{
			APIKey:    cfg.VonageAPIKey,
			APISecret: cfg.VonageAPISecret,
			BaseURL:   cfg.VonageBaseURL,
			Timeout:   cfg.CarrierTimeout,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, vonage)
	}
	if len(providers) == 0 {
		logger.Warn("no carrier credentials configured, falling back to mock provider")
		providers = append(providers, carrier.NewMockProvider("mock", time.Now().UnixNano()))
	}
	return providers, nil
}

// buildBackendRouter wires whichever generation backends have credentials
// and computes the complexity preferences over the available set.
func buildBackendRouter(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, m *metrics.GatewayMetrics) (*backend.Router, error) {
	var backends []backend.Backend

	if cfg.GroqAPIKey != "" {
		groq, err := backend.NewGroqBackend(backend.GroqConfig{
			APIKey:  cfg.GroqAPIKey,
			ModelID: cfg.GroqModelID,
			BaseURL: cfg.GroqBaseURL,
			Timeout: cfg.BackendTimeout,
		})
		if err != nil {
			return nil, err
		}
		backends = append(backends, groq)
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		logger.Warn("aws config unavailable, bedrock backend disabled", "error", err)
	} else {
		bedrockClient := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
			if cfg.AWSEndpointOverride != "" {
				o.BaseEndpoint = &cfg.AWSEndpointOverride
			}
		})
		backends = append(backends, backend.NewBedrockBackend(bedrockClient, cfg.BedrockModelID))
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := backend.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, err
		}
		backends = append(backends, gemini)
	}

	// Cheapest first. Per-invocation cost weights drive the fallback tail.
	costs := map[string]float64{"groq": 0.001, "bedrock": 0.01, "gemini": 0.02}
	available := map[string]bool{}
	var costOrder []string
	for _, name := range []string{"groq", "bedrock", "gemini"} {
		for _, b := range backends {
			if b.Name() == name {
				costOrder = append(costOrder, name)
				available[name] = true
			}
		}
	}
	if len(costOrder) == 0 {
		return nil, errNoBackends
	}

	pick := func(names ...string) string {
		for _, name := range names {
			if available[name] {
				return name
			}
		}
		return costOrder[0]
	}
	preferred := map[backend.Complexity]string{
		backend.ComplexitySimple:       pick("groq"),
		backend.ComplexityModerate:     pick("groq"),
		backend.ComplexityComplex:      pick("bedrock"),
		backend.ComplexityMultilingual: pick("gemini"),
	}

	return backend.NewRouter(backends, backend.RouterConfig{
		CostOrder:       costOrder,
		Costs:           costs,
		Preferred:       preferred,
		Timeout:         cfg.BackendTimeout,
		DefaultLanguage: cfg.DefaultLanguage,
	}, logger, m)
}
