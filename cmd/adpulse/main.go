package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/adpulse/adpulse/internal/api"
	"github.com/adpulse/adpulse/internal/auth"
	"github.com/adpulse/adpulse/internal/automation"
	"github.com/adpulse/adpulse/internal/cache"
	"github.com/adpulse/adpulse/internal/circuitbreaker"
	"github.com/adpulse/adpulse/internal/config"
	"github.com/adpulse/adpulse/internal/credits"
	"github.com/adpulse/adpulse/internal/crypto"
	"github.com/adpulse/adpulse/internal/notifications"
	"github.com/adpulse/adpulse/internal/provider/anthropic"
	"github.com/adpulse/adpulse/internal/provider/bedrock"
	"github.com/adpulse/adpulse/internal/provider/openai"
	"github.com/adpulse/adpulse/internal/queue"
	"github.com/adpulse/adpulse/internal/ratelimit"
	"github.com/adpulse/adpulse/internal/repository"
	"github.com/adpulse/adpulse/internal/router"
	"github.com/adpulse/adpulse/internal/schedule"
	"github.com/adpulse/adpulse/internal/scraper"
	"github.com/adpulse/adpulse/internal/secrets"
	"github.com/adpulse/adpulse/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting adpulse", "addr", cfg.Addr, "version", "0.1.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.Init(ctx, "adpulse", cfg.OTLPEndpoint)
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	var (
		db             *sql.DB
		workspaceRepo  repository.WorkspaceRepository
		automationRepo repository.AutomationRepository
		ledgerRepo     repository.LedgerRepository
		reportRepo     repository.ReportRepository
		healthDeps     []api.Dependency
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		workspaceRepo = repository.NewPostgresWorkspaceRepository(db)
		automationRepo = repository.NewPostgresAutomationRepository(db)
		ledgerRepo = repository.NewPostgresLedgerRepository(db)
		reportRepo = repository.NewPostgresReportRepository(db)
		healthDeps = append(healthDeps, api.PostgresDependency(db))
		slog.Info("using postgres repositories")
	} else {
		workspaceRepo = repository.NewInMemoryWorkspaceRepository()
		automationRepo = repository.NewInMemoryAutomationRepository()
		ledgerRepo = repository.NewInMemoryLedgerRepository()
		reportRepo = repository.NewInMemoryReportRepository()
		slog.Info("using in-memory repositories")
	}

	var breakerOpts []circuitbreaker.ManagerOption
	if cfg.RedisURL != "" {
		breakerOpts = append(breakerOpts, circuitbreaker.WithRedis(cfg.RedisURL))
	}
	breakers := circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), breakerOpts...)

	keys := secrets.ProviderKeys{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		MetaAccessToken: cfg.MetaAccessToken,
	}
	if cfg.AWSRegion != "" {
		store, err := secrets.NewAWSStore(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Warn("secrets manager unavailable, using env keys", "error", err)
		} else {
			stored, err := secrets.LoadProviderKeys(ctx, secrets.NewCached(store, 5*time.Minute))
			if err != nil {
				slog.Warn("failed to load provider keys from secrets manager", "error", err)
			} else {
				keys = stored.Override(keys)
			}
		}
	}

	providers := make(map[string]router.Provider)

	if keys.OpenAIAPIKey != "" {
		providers["openai"] = openai.New(keys.OpenAIAPIKey, cfg.OpenAIBaseURL)
		slog.Info("registered provider", "provider", "openai")
	}

	if keys.AnthropicAPIKey != "" {
		providers["anthropic"] = anthropic.New(keys.AnthropicAPIKey)
		slog.Info("registered provider", "provider", "anthropic")
	}

	if cfg.AWSRegion != "" {
		bedrockProvider, err := bedrock.New(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Warn("failed to initialize bedrock provider", "error", err)
		} else {
			providers["bedrock"] = bedrockProvider
			slog.Info("registered provider", "provider", "bedrock", "region", cfg.AWSRegion)
		}
	}

	if len(providers) == 0 {
		slog.Error("no providers configured")
		os.Exit(1)
	}

	providerRouter := router.New(providers, cfg.DefaultProvider, breakers)

	var responseCache cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			slog.Warn("failed to connect to redis for cache, using in-memory", "error", err)
			responseCache = cache.NewInMemoryCache()
		} else {
			responseCache = redisCache
			healthDeps = append(healthDeps, api.RedisDependency(redisCache.Client()))
			slog.Info("using redis cache")
		}
	} else {
		responseCache = cache.NewInMemoryCache()
		slog.Info("using in-memory cache")
	}

	var encryptor *crypto.Encryptor
	if cfg.EncryptionKey != "" {
		encryptor, err = crypto.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			slog.Error("invalid encryption key", "error", err)
			os.Exit(1)
		}
	}

	workspaceSecrets := secretsLookup(workspaceRepo, encryptor)
	notifier := buildNotifier(ctx, cfg, workspaceSecrets)

	var dedup credits.AlertDeduplicator
	if cfg.RedisURL != "" {
		redisDedup, err := credits.NewRedisDeduplicator(cfg.RedisURL, 6*time.Hour)
		if err != nil {
			slog.Warn("redis deduplicator unavailable, using in-memory", "error", err)
			dedup = credits.NewInMemoryDeduplicator()
		} else {
			dedup = redisDedup
		}
	} else {
		dedup = credits.NewInMemoryDeduplicator()
	}

	creditSvc := credits.NewService(workspaceRepo, ledgerRepo, credits.NewPriceBook())
	monitor := credits.NewMonitor(credits.DefaultThresholds(), dedup)
	monitor.OnAlert(credits.LogAlertHandler)
	monitor.OnAlert(alertNotifier(ctx, notifier))

	var reportQueue queue.Queue
	if cfg.AWSRegion != "" && cfg.ReportQueueURL != "" {
		sqsQueue, err := queue.NewSQSQueue(ctx, cfg.AWSRegion, cfg.ReportQueueURL)
		if err != nil {
			slog.Warn("sqs unavailable, using in-memory queue", "error", err)
			reportQueue = queue.NewInMemoryQueue()
		} else {
			reportQueue = sqsQueue
			slog.Info("using sqs report queue", "url", cfg.ReportQueueURL)
		}
	} else {
		reportQueue = queue.NewInMemoryQueue()
		slog.Info("using in-memory report queue")
	}

	adScraper := scraper.New(cfg.AdLibraryBaseURL, keys.MetaAccessToken, responseCache, breakers,
		scraper.WithTokenLookup(func(workspaceID string) (string, bool) {
			s := workspaceSecrets(workspaceID)
			return s.MetaAccessToken, s.MetaAccessToken != ""
		}))

	executor := automation.NewExecutor(
		workspaceRepo,
		automationRepo,
		creditSvc,
		providerRouter,
		adScraper,
		reportQueue,
		notifier,
	)

	dispatcher := schedule.NewDispatcher(automationRepo, executor, cfg.DispatcherInterval)
	go dispatcher.Run(ctx)

	reportWorker := automation.NewReportWorker(reportQueue, reportRepo)
	go reportWorker.Run(ctx)

	handler := api.NewHandler(api.HandlerConfig{
		Workspaces:     workspaceRepo,
		Automations:    automationRepo,
		Reports:        reportRepo,
		Credits:        creditSvc,
		Monitor:        monitor,
		Generator:      providerRouter,
		Scanner:        adScraper,
		Cache:          responseCache,
		CacheTTL:       cfg.CacheTTL,
		Tokens:         auth.NewTokenStore(),
		Runner:         executor,
		GeneralLimiter: ratelimit.NewSlidingWindow(cfg.RateLimitWindow, ratelimit.WithClass("general")),
		AILimiter:      ratelimit.NewSlidingWindow(cfg.RateLimitWindow, ratelimit.WithClass("ai")),
		AuthLimiter:    ratelimit.NewSlidingWindow(cfg.RateLimitWindow, ratelimit.WithClass("auth")),
		Dependencies:   healthDeps,
		UpstreamStates: breakers.States,
	})

	var adminUsers auth.AdminUserRepository
	if db != nil {
		adminUsers = auth.NewPostgresAdminUserRepository(db)
	} else {
		adminUsers = auth.NewInMemoryAdminUserRepository()
	}
	adminHandler := api.NewAdminHandler(api.AdminConfig{
		Workspaces: workspaceRepo,
		Credits:    creditSvc,
		Auth:       auth.NewAuthenticator(adminUsers),
		Encryptor:  encryptor,
	})

	mux := http.NewServeMux()
	mux.Handle("/admin/", adminHandler)
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// secretsLookup opens a workspace's sealed credential envelope. Without an
// encryption key every workspace resolves to an empty envelope, so Slack and
// per-workspace Meta tokens are effectively disabled.
func secretsLookup(workspaces repository.WorkspaceRepository, encryptor *crypto.Encryptor) func(workspaceID string) crypto.IntegrationSecrets {
	return func(workspaceID string) crypto.IntegrationSecrets {
		if encryptor == nil {
			return crypto.IntegrationSecrets{}
		}
		ws, err := workspaces.GetByID(context.Background(), workspaceID)
		if err != nil {
			return crypto.IntegrationSecrets{}
		}
		secrets, err := encryptor.OpenSecrets(ws.SealedSecrets)
		if err != nil {
			slog.Warn("failed to open secrets envelope", "workspace_id", workspaceID, "error", err)
			return crypto.IntegrationSecrets{}
		}
		return secrets
	}
}

// buildNotifier fans out to SNS (ops topic) and Slack (workspace webhooks),
// skipping whichever is not configured.
func buildNotifier(ctx context.Context, cfg *config.Config, workspaceSecrets func(string) crypto.IntegrationSecrets) notifications.Notifier {
	var notifiers []notifications.Notifier

	if cfg.AWSRegion != "" && cfg.AlertTopicArn != "" {
		snsNotifier, err := notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.AlertTopicArn)
		if err != nil {
			slog.Warn("sns notifier unavailable", "error", err)
		} else {
			notifiers = append(notifiers, snsNotifier)
			slog.Info("sns notifications enabled", "topic", cfg.AlertTopicArn)
		}
	}

	notifiers = append(notifiers, notifications.NewSlackNotifier(func(workspaceID string) (string, bool) {
		url := workspaceSecrets(workspaceID).SlackWebhookURL
		return url, url != ""
	}))

	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return notifications.NewFanout(notifiers...)
}

// alertNotifier bridges credit monitor alerts into the notification fanout.
func alertNotifier(ctx context.Context, notifier notifications.Notifier) credits.AlertHandler {
	levels := map[credits.AlertLevel]notifications.NotificationType{
		credits.AlertLevelLow:      notifications.NotificationCreditsLow,
		credits.AlertLevelCritical: notifications.NotificationCreditsCritical,
		credits.AlertLevelEmpty:    notifications.NotificationCreditsEmpty,
	}
	return func(alert credits.Alert) {
		notificationType, ok := levels[alert.Level]
		if !ok {
			return
		}
		err := notifier.Send(ctx, notifications.Notification{
			Type:        notificationType,
			WorkspaceID: alert.WorkspaceID,
			Message:     "credit balance " + string(alert.Level),
			Data: map[string]interface{}{
				"balance":   alert.Balance,
				"allowance": alert.Allowance,
			},
		})
		if err != nil {
			slog.Warn("failed to send credit alert", "workspace_id", alert.WorkspaceID, "error", err)
		}
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
