package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	billingapp "github.com/postpilot/backend/internal/application/billing"
	"github.com/postpilot/backend/internal/application/publishing"
	"github.com/postpilot/backend/internal/domain/social"
	"github.com/postpilot/backend/internal/infrastructure/auth"
	infrabilling "github.com/postpilot/backend/internal/infrastructure/billing"
	"github.com/postpilot/backend/internal/infrastructure/cache"
	"github.com/postpilot/backend/internal/infrastructure/config"
	"github.com/postpilot/backend/internal/infrastructure/logger"
	"github.com/postpilot/backend/internal/infrastructure/media"
	"github.com/postpilot/backend/internal/infrastructure/persistence"
	"github.com/postpilot/backend/internal/infrastructure/platform"
	"github.com/postpilot/backend/internal/infrastructure/telemetry"
	"github.com/postpilot/backend/internal/infrastructure/tokenstore"
	"github.com/postpilot/backend/internal/interfaces/http/handler"
	"github.com/postpilot/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting PostPilot backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	publishMetrics, err := telemetry.NewPublishMetrics(meterProvider.Meter("postpilot/publishing"))
	if err != nil {
		log.Fatal("Failed to create publish metrics", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	if loggerProvider.IsEnabled() {
		log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, loggerProvider.ZapCore())
		}))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	dbOpts := []persistence.Option{persistence.WithGormLogger(gormLog)}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbOpts = append(dbOpts, persistence.WithTracing())
	}
	db, err := persistence.NewDatabase(&cfg.Database, dbOpts...)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories
	userRepo := persistence.NewGormUserRepository(db.DB)
	entryRepo := persistence.NewGormQueueEntryRepository(db.DB)
	ledgerRepo := persistence.NewGormQuotaLedgerRepository(db.DB)
	connectionRepo := persistence.NewGormConnectionRepository(db.DB)
	recordRepo := persistence.NewGormPostRecordRepository(db.DB)

	// Redis backs idempotency and token revocation; both fall back to
	// in-process stores when no Redis is configured.
	var redisClient *redis.Client
	var idempotencyStore publishing.IdempotencyStore
	var tokenBlacklist auth.TokenBlacklist
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		idempotencyStore = cache.NewRedisIdempotencyStoreWithClient(redisClient, "")
		tokenBlacklist = auth.NewRedisTokenBlacklistWithClient(redisClient)
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	} else {
		memStore := cache.NewInMemoryIdempotencyStore()
		defer memStore.Close()
		idempotencyStore = memStore
		tokenBlacklist = auth.NewInMemoryTokenBlacklist()
		log.Warn("Redis not configured, using in-process stores")
	}

	// Token store
	cipher, err := tokenstore.NewTokenCipher(cfg.TokenStore.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize token cipher", zap.Error(err))
	}
	refresher := tokenstore.NewHTTPRefresher(oauthEndpoints(cfg.Platforms), 15*time.Second)
	tokenStore := tokenstore.NewStore(connectionRepo, cipher, refresher, cfg.TokenStore.RefreshMargin, log)

	// Platform adapters
	registry, err := platform.NewRegistry(platform.RegistryConfig{
		Facebook:  adapterConfig(cfg.Platforms.Facebook),
		Instagram: adapterConfig(cfg.Platforms.Instagram),
		LinkedIn:  adapterConfig(cfg.Platforms.LinkedIn),
		X:         adapterConfig(cfg.Platforms.X),
		YouTube:   adapterConfig(cfg.Platforms.YouTube),
	})
	if err != nil {
		log.Fatal("Failed to build platform registry", zap.Error(err))
	}

	// Media probing
	var prober publishing.MediaProber
	if cfg.Media.ProbeEnabled {
		s3Prober, err := media.NewS3Prober(ctx, &cfg.Media)
		if err != nil {
			log.Fatal("Failed to initialize media prober", zap.Error(err))
		}
		prober = s3Prober
	}

	// Application services
	enqueueService := publishing.NewEnqueueService(
		userRepo, entryRepo, ledgerRepo, connectionRepo, prober, idempotencyStore,
		publishing.EnqueueConfig{
			ReservationTTL: cfg.Quota.ReservationTTL,
			IdempotencyTTL: 24 * time.Hour,
		},
		log,
	)
	queueService := publishing.NewQueueService(entryRepo, ledgerRepo, log)
	quotaService := publishing.NewQuotaService(userRepo, ledgerRepo, log)
	connectionService := publishing.NewConnectionService(connectionRepo, tokenStore, log)
	webhookService := billingapp.NewStripeWebhookService(&infrabilling.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		IsTestMode:    cfg.Stripe.IsTestMode,
	}, userRepo, log)

	// Dispatcher and sweeper
	retryScheduler := publishing.NewRetryScheduler(publishing.RetryConfig{
		BaseDelay:      cfg.Retry.BaseDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		MaxAttempts:    cfg.Retry.MaxAttempts,
		JitterFraction: cfg.Retry.JitterFraction,
	})
	dispatcher := publishing.NewDispatcher(
		entryRepo, ledgerRepo, userRepo, tokenStore, registry, recordRepo,
		retryScheduler, publishMetrics,
		publishing.DispatcherConfig{
			PollInterval:            cfg.Queue.PollInterval,
			MaxInFlight:             cfg.Queue.MaxInFlight,
			MinInterval:             cfg.Queue.MinInterval,
			StuckCutoff:             cfg.Queue.StuckCutoff,
			ReservationTTL:          cfg.Quota.ReservationTTL,
			BreakerFailureThreshold: 5,
			BreakerOpenTimeout:      30 * time.Second,
		},
		log,
	)
	if cfg.Queue.DispatcherEnabled {
		if err := dispatcher.Start(ctx); err != nil {
			log.Fatal("Failed to start dispatcher", zap.Error(err))
		}
	}

	var sweeper *publishing.ReservationSweeper
	if cfg.Quota.SweepEnabled {
		sweeper = publishing.NewReservationSweeper(ledgerRepo,
			publishing.SweeperConfig{Interval: cfg.Quota.SweepInterval}, log)
		if err := sweeper.Start(ctx); err != nil {
			log.Fatal("Failed to start reservation sweeper", zap.Error(err))
		}
	}

	// HTTP surface
	jwtService := auth.NewJWTService(cfg.JWT)
	engine := router.NewEngine(router.EngineConfig{
		AppConfig:      cfg,
		Logger:         log,
		JWTService:     jwtService,
		TokenBlacklist: tokenBlacklist,
		TracingEnabled: tracerProvider.IsEnabled(),
	})

	var cachePinger handler.ContextPinger
	if redisClient != nil {
		cachePinger = redisPinger{client: redisClient}
	}
	handler.NewSystemHandler(db, cachePinger).RegisterRoutes(engine)

	router.NewRouter(engine).
		Register(handler.NewQueueHandler(enqueueService, queueService)).
		Register(handler.NewQuotaHandler(quotaService)).
		Register(handler.NewConnectionHandler(connectionService)).
		Register(handler.NewBillingHandler(webhookService)).
		Setup()

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if cfg.Queue.DispatcherEnabled {
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			log.Error("Dispatcher shutdown failed", zap.Error(err))
		}
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			log.Error("Reservation sweeper shutdown failed", zap.Error(err))
		}
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Logger provider shutdown failed", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Redis close failed", zap.Error(err))
		}
	}

	log.Info("Shutdown complete")
}

// oauthEndpoints builds the refresher's endpoint table from configuration,
// skipping platforms without a token URL.
func oauthEndpoints(cfg config.PlatformsConfig) map[social.Platform]tokenstore.OAuthEndpoint {
	endpoints := make(map[social.Platform]tokenstore.OAuthEndpoint)
	add := func(platform social.Platform, pc config.PlatformConfig) {
		if pc.TokenURL == "" {
			return
		}
		endpoints[platform] = tokenstore.OAuthEndpoint{
			TokenURL:     pc.TokenURL,
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
		}
	}
	add(social.PlatformFacebook, cfg.Facebook)
	add(social.PlatformInstagram, cfg.Instagram)
	add(social.PlatformLinkedIn, cfg.LinkedIn)
	add(social.PlatformX, cfg.X)
	add(social.PlatformYouTube, cfg.YouTube)
	return endpoints
}

func adapterConfig(pc config.PlatformConfig) platform.Config {
	return platform.Config{
		BaseURL:        pc.BaseURL,
		TimeoutSeconds: pc.TimeoutSeconds,
	}
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
