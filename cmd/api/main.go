package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/cszshop/api/internal/catalog"
	"github.com/cszshop/api/internal/handlers"
	"github.com/cszshop/api/internal/payments"
	"github.com/cszshop/api/internal/platform/config"
	pfirestore "github.com/cszshop/api/internal/platform/firestore"
	"github.com/cszshop/api/internal/platform/idempotency"
	"github.com/cszshop/api/internal/platform/jobs"
	"github.com/cszshop/api/internal/platform/observability"
	firestoreRepo "github.com/cszshop/api/internal/repositories/firestore"
	"github.com/cszshop/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envFile := flag.String("env-file", "", "optional path to a local env file")
	flag.Parse()

	baseLogger, err := observability.NewLogger("api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	var loadOpts []config.Option
	if *envFile != "" {
		loadOpts = append(loadOpts, config.WithEnvFile(*envFile))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("issues", invalid.Issues))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	couponRepo, err := firestoreRepo.NewCouponRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise coupon repository", zap.Error(err))
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}

	catalogClient, err := catalog.NewClient(cfg.Catalog)
	if err != nil {
		logger.Fatal("failed to initialise catalog client", zap.Error(err))
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Stripe.APIKey,
		Logger: payments.StripeLogger(zapEventLogger(logger.Named("payments"))),
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}
	webhookVerifier, err := payments.NewWebhookVerifier(cfg.Stripe.WebhookSecret)
	if err != nil {
		logger.Fatal("failed to initialise webhook verifier", zap.Error(err))
	}

	var fulfillment services.FulfillmentNotifier
	var pubsubClient *pubsub.Client
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.FulfillmentTopic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubFulfillmentPublisher(pubsubClient.Topic(cfg.PubSub.FulfillmentTopic))
		if err != nil {
			logger.Fatal("failed to initialise fulfillment publisher", zap.Error(err))
		}
		fulfillment = publisher
	} else {
		logger.Warn("fulfillment publishing disabled; pubsub project or topic not configured")
	}

	couponValidator, err := services.NewStoreCouponValidator(services.StoreCouponValidatorConfig{
		Coupons: couponRepo,
		Clock:   time.Now,
		Logger:  zapEventLogger(logger.Named("coupons")),
	})
	if err != nil {
		logger.Fatal("failed to initialise coupon validator", zap.Error(err))
	}

	pricingEngine, err := services.NewCartPricingEngine(services.CartPricingEngineConfig{
		Catalog: catalogClient,
		Coupons: couponValidator,
		Pricing: cfg.Pricing,
		Logger:  zapEventLogger(logger.Named("pricing")),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	checkoutService, err := services.NewStripeCheckoutService(services.StripeCheckoutServiceConfig{
		Pricing:  pricingEngine,
		Orders:   orderRepo,
		Counters: counterRepo,
		Provider: stripeProvider,
		Checkout: cfg.Checkout,
		Clock:    time.Now,
		Logger:   zapEventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	bankTransferService, err := services.NewBankTransferOrderService(services.BankTransferOrderServiceConfig{
		Pricing:  pricingEngine,
		Orders:   orderRepo,
		Counters: counterRepo,
		Checkout: cfg.Checkout,
		Clock:    time.Now,
		Logger:   zapEventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise bank transfer service", zap.Error(err))
	}

	orderService, err := services.NewPaymentOrderService(services.PaymentOrderServiceConfig{
		Orders:      orderRepo,
		Fulfillment: fulfillment,
		Clock:       time.Now,
		Logger:      zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatch)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	webhookHandlers, err := handlers.NewWebhookHandlers(webhookVerifier, orderService,
		handlers.WithEventDeduplication(idempotencyStore, cfg.Idempotency.TTL),
	)
	if err != nil {
		logger.Fatal("failed to initialise webhook handlers", zap.Error(err))
	}
	checkoutHandlers := handlers.NewCheckoutHandlers(pricingEngine, checkoutService, bankTransferService, couponValidator)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			iter := firestoreClient.Collections(ctx)
			if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		}),
	)

	projectID := cfg.Firestore.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("cszshop api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// zapEventLogger adapts the services.Logger contract onto a zap logger.
func zapEventLogger(logger *zap.Logger) services.Logger {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info("service event", zFields...)
	}
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
