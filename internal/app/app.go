package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cachedadapter "github.com/Abdurahmanit/GroupProject/basket-service/internal/adapter/cached"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/adapter/client"
	mongoadapter "github.com/Abdurahmanit/GroupProject/basket-service/internal/adapter/mongo"
	natsadapter "github.com/Abdurahmanit/GroupProject/basket-service/internal/adapter/nats"
	redisadapter "github.com/Abdurahmanit/GroupProject/basket-service/internal/adapter/redis"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/app/config"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/keylock"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/metrics"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/retry"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/platform/tracer"
	httpport "github.com/Abdurahmanit/GroupProject/basket-service/internal/port/http"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/service"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const metricsNamespace = "basket"

type App struct {
	cfg            *config.Config
	log            logger.Logger
	server         *httpport.Server
	mongoClient    *mongo.Client
	redisClient    *redis.Client
	natsConn       *nats.Conn
	discountClient *client.DiscountClient
	tracerProvider *sdktrace.TracerProvider
}

// New connects every dependency, retrying each with a fixed delay, and builds
// the HTTP server. Nothing accepts traffic until Run.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	appLogger, err := logger.NewZapLogger(logger.ZapLoggerConfig{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger.Infof("Configuration loaded: Env=%s, HTTP Port: %s", cfg.Env, cfg.HTTPServer.Port)

	a := &App{cfg: cfg, log: appLogger}
	a.tracerProvider = tracer.InitTracer(cfg.Tracing, appLogger)
	m := metrics.NewMetricsManager(metricsNamespace)
	bootstrap := retry.Config{Attempts: cfg.Bootstrap.Attempts, Delay: cfg.Bootstrap.Delay}

	a.mongoClient, err = retry.Do(ctx, appLogger, "MongoDB connect", bootstrap, func(ctx context.Context) (*mongo.Client, error) {
		return mongoadapter.NewClient(ctx, cfg.MongoDB)
	})
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to initialize MongoDB client: %w", err)
	}
	appLogger.Info("MongoDB client initialized successfully")

	a.redisClient, err = retry.Do(ctx, appLogger, "Redis connect", bootstrap, func(ctx context.Context) (*redis.Client, error) {
		return redisadapter.NewClient(ctx, cfg.Redis)
	})
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
	}
	appLogger.Info("Redis client initialized successfully")

	a.natsConn, err = retry.Do(ctx, appLogger, "NATS connect", bootstrap, func(context.Context) (*nats.Conn, error) {
		return natsadapter.NewConnection(cfg.NATS, appLogger)
	})
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := a.natsConn.JetStream()
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}
	publisher, err := natsadapter.NewCheckoutPublisher(js, cfg.NATS, appLogger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if _, err := retry.Do(ctx, appLogger, "JetStream stream provisioning", bootstrap, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, publisher.EnsureStream(ctx)
	}); err != nil {
		a.close(ctx)
		return nil, err
	}
	appLogger.Info("NATS JetStream publisher initialized successfully")

	a.discountClient, err = client.NewDiscountClient(cfg.Discount, cfg.IsProduction(), appLogger, m)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to initialize discount client: %w", err)
	}
	appLogger.Infof("Discount client targets %s", cfg.Discount.Address)

	store := mongoadapter.NewBasketRepository(a.mongoClient, cfg.MongoDB)
	cache := redisadapter.NewBasketCache(a.redisClient)
	baskets := cachedadapter.NewBasketRepository(store, cache, appLogger, m, cachedadapter.Config{
		TTL:          cfg.Cart.TTL,
		CacheTimeout: cfg.Cart.CacheTimeout,
	})

	locks := keylock.New()
	basketService := service.NewBasketService(baskets, a.discountClient, locks, appLogger, m, service.BasketServiceConfig{
		MaxDiscountConcurrency: cfg.Discount.MaxConcurrency,
	})
	checkoutService := service.NewCheckoutService(baskets, store, publisher, locks, appLogger, m)

	handler := httpport.NewBasketHandler(basketService, checkoutService, appLogger)
	router := httpport.NewRouter(handler, m, appLogger, cfg.HTTPServer.RequestTimeout)
	a.server = httpport.NewServer(cfg.HTTPServer, router, appLogger)

	return a, nil
}

func (a *App) Run() {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		a.log.Infof("Received shutdown signal: %v. Shutting down application...", sig)
	case err := <-serverErr:
		if err != nil {
			a.log.Errorf("HTTP server stopped unexpectedly: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPServer.TimeoutGraceful+5*time.Second)
	defer cancel()

	if err := a.server.Stop(shutdownCtx); err != nil {
		a.log.Errorf("Error during HTTP server graceful shutdown: %v", err)
	} else {
		a.log.Info("HTTP server stopped successfully")
	}

	a.close(shutdownCtx)
	a.log.Info("Application shut down successfully")
	_ = a.log.Sync()
}

// close releases whatever New managed to open, in reverse order.
func (a *App) close(ctx context.Context) {
	if a.discountClient != nil {
		if err := a.discountClient.Close(); err != nil {
			a.log.Errorf("Error closing discount client: %v", err)
		}
	}
	natsadapter.Drain(a.natsConn, a.log)
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Errorf("Error closing Redis client: %v", err)
		}
	}
	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(ctx); err != nil {
			a.log.Errorf("Error disconnecting from MongoDB: %v", err)
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.log.Errorf("Error shutting down tracer provider: %v", err)
		}
	}
}
