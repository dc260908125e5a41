package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/storefront/internal/adapter/catalog"
	"github.com/rl1809/storefront/internal/adapter/eventbus"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/payment"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthCheckInterval = 10 * time.Second
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.Open(ctx, storage.Options{
		Driver:       cfg.StorageDriver,
		DSN:          cfg.StorageDSN,
		MaxOpenConns: cfg.StorageMaxOpenConns,
		Currency:     cfg.Currency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}

	// Initialize Redis, optional
	var rdb *redis.Client
	var cache port.CacheRepository
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect redis")
		}
		cache = storage.NewRedisAdapter(rdb)
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	m := metrics.New()

	// Catalog gateway
	var source catalog.Source
	switch cfg.CatalogSource {
	case "mirror":
		source = catalog.NewMirrorSource(store)
	default:
		source = catalog.NewHTTPSource(cfg.CatalogBaseURL, cfg.CatalogLogin, cfg.CatalogAuthToken, cfg.CatalogTimeout)
	}
	gateway := catalog.NewGateway(source, cache, m, catalog.Options{
		CacheTTL:        cfg.CatalogCacheTTL,
		BreakerFailures: cfg.CatalogBreakerFailures,
		BreakerCooldown: cfg.CatalogBreakerCooldown,
	})
	log.Info().Str("source", cfg.CatalogSource).Msg("catalog gateway ready")

	// Event publisher
	bus, err := newBus(cfg)
	if err != nil {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("broker unavailable, events will be degraded")
	}
	publisher := eventbus.NewPublisher(bus, m, eventbus.Options{
		MaxAttempts:   cfg.PublishMaxAttempts,
		Timeout:       cfg.PublishTimeout,
		Backoff:       100 * time.Millisecond,
		QueueSize:     cfg.PublishQueueSize,
		Workers:       cfg.PublishWorkers,
		SnapshotTopic: cfg.TopicShoppingCart,
	})

	payments, err := payment.NewStaticAuthorizer(cfg.PaymentMode)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure payments")
	}

	// Initialize services
	pricing := cfg.Pricing()
	cartService := service.NewCartService(store, gateway, publisher, pricing, cfg.Currency)
	checkoutService := service.NewCheckoutService(store, gateway, publisher, payments, pricing, cfg.TopicOrders, cfg.DeleteCartOnCheckout)
	webhookService := service.NewWebhookService(cfg.WebhookSecret, store, cache, publisher, cfg.TopicProductUpdates, cfg.WebhookDedupeTTL)
	if cfg.WebhookSecret == "" {
		log.Warn().Msg("WEBHOOK_SECRET not set, webhook signatures are not checked")
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	reporter := handler.NewHealthReporter(store, healthCheckInterval)
	reporter.Register(grpcServer)
	reflection.Register(grpcServer)
	go reporter.Run(ctx)

	grpcAddr := fmt.Sprintf(":%d", cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", grpcAddr).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("addr", grpcAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(cartService, checkoutService, webhookService, gateway, m, cfg.WebhookProvider, cfg.SignatureHeader())
	router := handler.NewRouter(httpHandler, m, cfg.DefaultUserID)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	log.Info().Msg("HTTP server stopped")

	// Stop gRPC server
	reporter.Shutdown()
	grpcServer.GracefulStop()
	cancel()
	log.Info().Msg("gRPC server stopped")

	// Drain queued events and close the broker
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event bus")
	}

	// Close connections
	if rdb != nil {
		rdb.Close()
	}
	store.Close()
	log.Info().Msg("connections closed")
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// newBus returns a nil Bus for BROKER=none; the publisher then degrades every
// event instead of failing requests.
func newBus(cfg config.Config) (eventbus.Bus, error) {
	switch cfg.Broker {
	case "kafka":
		brokers := cfg.KafkaBrokerList()
		if len(brokers) == 0 {
			return nil, eventbus.ErrNoBroker
		}
		log.Info().Strs("brokers", brokers).Msg("publishing events to kafka")
		return eventbus.NewKafkaBus(brokers), nil
	case "amqp":
		bus, err := eventbus.NewAMQPBus(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing events to amqp")
		return bus, nil
	default:
		return nil, nil
	}
}
