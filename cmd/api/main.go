package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vastra-market/api/internal/di"
	"github.com/vastra-market/api/internal/handlers"
	"github.com/vastra-market/api/internal/platform/auth"
	"github.com/vastra-market/api/internal/platform/config"
	pfirestore "github.com/vastra-market/api/internal/platform/firestore"
	"github.com/vastra-market/api/internal/platform/idempotency"
	"github.com/vastra-market/api/internal/platform/jobs"
	"github.com/vastra-market/api/internal/platform/observability"
	"github.com/vastra-market/api/internal/platform/ratelimit"
	"github.com/vastra-market/api/internal/platform/secrets"
	platformstorage "github.com/vastra-market/api/internal/platform/storage"
	"github.com/vastra-market/api/internal/repositories"
	firestoreRepo "github.com/vastra-market/api/internal/repositories/firestore"
	"github.com/vastra-market/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var secretErr *config.SecretError
		if errors.As(err, &secretErr) {
			logger.Fatal("failed to resolve secret", zap.String("ref", secretErr.Ref), zap.Error(secretErr.Err))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)

	var extraChecks []repositories.DependencyCheck
	var limiter ratelimit.Limiter
	var reviewLimiter ratelimit.Limiter
	redisClient := newRedisClient(cfg)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		limiter = ratelimit.NewRedis(redisClient, "ratelimit:coupons", cfg.RateLimits.CouponValidatePerMinute, time.Minute)
		reviewLimiter = ratelimit.NewRedis(redisClient, "ratelimit:reviews", cfg.RateLimits.ReviewSubmitPerMinute, time.Minute)
		extraChecks = append(extraChecks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	} else {
		logger.Info("redis not configured; using in-process rate limiting")
		limiter = ratelimit.NewMemory(cfg.RateLimits.CouponValidatePerMinute, time.Minute, time.Now)
		reviewLimiter = ratelimit.NewMemory(cfg.RateLimits.ReviewSubmitPerMinute, time.Minute, time.Now)
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, extraChecks...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	notifier, closePublisher := newNotificationPublisher(ctx, logger, cfg)
	defer closePublisher()

	var media services.MediaVerifier
	if bucket := strings.TrimSpace(cfg.Storage.ReviewMediaBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		verifier, err := platformstorage.NewMediaVerifier(bucket, platformstorage.NewGCSStatter(storageClient))
		if err != nil {
			logger.Fatal("failed to initialise media verifier", zap.Error(err))
		}
		media = verifier
	} else {
		logger.Warn("review media bucket not configured; review images are not verified")
	}

	collab := di.Collaborators{
		Media:  media,
		Logger: logger,
		Build:  buildInfo,
		Clock:  time.Now,
	}
	if notifier != nil {
		collab.Notifications = notifier
	}
	if metrics, err := observability.NewCommerceMetrics(nil); err != nil {
		logger.Warn("commerce metrics disabled", zap.Error(err))
	} else {
		collab.Metrics = metrics
	}

	container, err := di.NewContainer(ctx, cfg, registry, collab)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	workersCtx, workersCancel := context.WithCancel(context.Background())
	var workersWG sync.WaitGroup
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupLogger := logger.Named("idempotency")
		runPeriodic(workersCtx, &workersWG, cfg.Idempotency.CleanupInterval, func(ctx context.Context) {
			removed, err := idempotencyStore.CleanupExpired(ctx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
			if err != nil {
				cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
				return
			}
			if removed > 0 {
				cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		})
	}
	if cfg.Reconciliation.Interval > 0 {
		reconcileLogger := logger.Named("reconcile")
		reconciler := container.Services.Reconciler
		runPeriodic(workersCtx, &workersWG, cfg.Reconciliation.Interval, func(ctx context.Context) {
			report, err := reconciler.Reconcile(ctx, services.ReconcileCouponsCommand{})
			if err != nil {
				reconcileLogger.Error("coupon reconciliation failed", zap.Error(err))
				return
			}
			reconcileLogger.Info("coupon reconciliation finished",
				zap.Int("scanned", report.Scanned),
				zap.Int("repaired", report.Repaired),
				zap.Int("issues", len(report.Issues)),
			)
		})
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, 5*time.Second)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	couponLimit := ratelimit.Middleware(limiter, handlers.UserRateLimitKey, time.Minute)
	reviewLimit := ratelimit.Middleware(reviewLimiter, handlers.UserRateLimitKey, time.Minute)

	svc := container.Services
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, handlers.WithIdempotency(idempotencyMiddleware))
	couponHandlers := handlers.NewCouponHandlers(authenticator, svc.Coupons, handlers.WithRateLimit(couponLimit))
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews,
		handlers.WithIdempotency(idempotencyMiddleware),
		handlers.WithRateLimit(reviewLimit),
	)
	adminHandlers := handlers.NewAdminHandlers(authenticator, svc.Orders, svc.Reviews, handlers.WithIdempotency(idempotencyMiddleware))
	internalHandlers := handlers.NewInternalHandlers(svc.Reconciler)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithTimeout(cfg.Server.RequestTimeout),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCouponRoutes(couponHandlers.Routes),
		handlers.WithReviewRoutes(reviewHandlers.Routes),
		handlers.WithProductRoutes(reviewHandlers.ProductRoutes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("vastra api listening", zap.String("environment", buildInfo.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	workersCancel()
	workersWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// runPeriodic runs fn every interval until ctx is cancelled. Each run gets a one minute budget.
func runPeriodic(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, time.Minute)
				fn(runCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// newNotificationPublisher returns a nil sink when no topic is configured or the client cannot be
// created; orders are still placed without notifications.
func newNotificationPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (*jobs.PubSubNotificationPublisher, func()) {
	noop := func() {}
	topicID := strings.TrimSpace(cfg.PubSub.NotificationTopic)
	if topicID == "" || strings.TrimSpace(cfg.PubSub.ProjectID) == "" {
		logger.Warn("pubsub notification topic not configured; notifications disabled")
		return nil, noop
	}

	var clientOpts []option.ClientOption
	if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" {
		clientOpts = append(clientOpts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, clientOpts...)
	if err != nil {
		logger.Warn("pubsub client unavailable; notifications disabled", zap.Error(err))
		return nil, noop
	}
	topic := client.Topic(topicID)
	publisher, err := jobs.NewPubSubNotificationPublisher(topic)
	if err != nil {
		_ = client.Close()
		logger.Warn("pubsub publisher unavailable; notifications disabled", zap.Error(err))
		return nil, noop
	}
	return publisher, func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, &http.Client{Timeout: 5 * time.Second}, time.Now)
	validator := auth.NewOIDCValidator(cache)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if fallback := lookup("API_SECRET_FALLBACK_FILE"); fallback != "" {
		opts = append(opts, secrets.WithFallbackFile(fallback))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
