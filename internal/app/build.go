package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promo"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/rediscache"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// api is the assembled HTTP stack and the resources it owns.
type api struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

// Close releases Redis and Kafka clients in reverse creation order.
func (a *api) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires repositories, optional Redis and Kafka, domain services and
// the middleware chain on top of a migrated pool.
func build(
	ctx context.Context,
	lg *zap.Logger,
	cfg *Config,
	pool *pgxpool.Pool,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (_ *api, rerr error) {
	a := &api{health: health.New()}
	defer func() {
		if rerr != nil {
			a.Close()
		}
	}()

	a.health.Register(health.Readiness, "postgres", health.PingCheck(pool), health.WithTimeout(5*time.Second))
	a.health.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))

	// Repositories.
	var products product.Repository = postgres.NewProductRepository(pool)
	promoRepo := postgres.NewPromoRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	orderOpts := []order.Option{
		order.WithMeterProvider(mp),
		order.WithTracerProvider(tp),
	}

	// Optional Redis: catalog cache and shared rate limit counters.
	var limitStore httpmiddleware.LimitStore
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		rdb := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		cache := rediscache.NewProductCache(products, rdb, cfg.Redis.TTL)
		products = cache
		orderOpts = append(orderOpts, order.WithInvalidator(cache))
		limitStore = httpmiddleware.NewRedisStore(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		a.health.Register(health.Readiness, "redis", health.RedisCheck(rdb))
		lg.Info("Redis enabled", zap.String("addr", opts.Addr))
	} else {
		mem := httpmiddleware.NewMemoryStore(cfg.RateLimit.Max, cfg.RateLimit.Window)
		cleanupCtx, cancel := context.WithCancel(ctx)
		a.closers = append(a.closers, cancel)
		go mem.Cleanup(cleanupCtx)
		limitStore = mem
	}

	// Optional Kafka: order lifecycle events.
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create kafka publisher")
		}
		a.closers = append(a.closers, func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		})
		orderOpts = append(orderOpts, order.WithPublisher(pub))
		lg.Info("Kafka enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Domain services.
	tokens, err := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL)
	if err != nil {
		return nil, errors.Wrap(err, "create token issuer")
	}
	authService := auth.NewService(userRepo, tokens)
	catalog := product.NewService(products)
	promoService, err := promo.NewService(promoRepo, promo.WithMeterProvider(mp))
	if err != nil {
		return nil, errors.Wrap(err, "create promo service")
	}
	orderService, err := order.NewService(products, promoService, orderRepo, orderOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	a.closers = append(a.closers, orderService.Close)

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Use(httpmiddleware.Labeler())
	router.Get("/livez", a.health.LiveEndpoint)
	router.Get("/readyz", a.health.ReadyEndpoint)
	handler.New(
		handler.Config{RequestTimeout: cfg.Server.RequestTimeout},
		catalog, orderService, promoService, authService,
	).Mount(router)

	a.handler = httpmiddleware.Wrap(router,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Store:  limitStore,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument(serviceName, tp, mp),
		httpmiddleware.LogRequests(),
	)
	return a, nil
}
