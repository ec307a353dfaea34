package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/safar/storefront-api/internal/api"
	"github.com/safar/storefront-api/internal/catalog"
	"github.com/safar/storefront-api/internal/config"
	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/events"
	"github.com/safar/storefront-api/internal/fulfillment"
	"github.com/safar/storefront-api/internal/logging"
	"github.com/safar/storefront-api/internal/metrics"
	"github.com/safar/storefront-api/internal/orders"
	"github.com/safar/storefront-api/internal/pricing"
	"github.com/safar/storefront-api/internal/ratelimit"
	"github.com/safar/storefront-api/internal/reservation"
	"github.com/safar/storefront-api/internal/vendor"
	"golang.org/x/sync/errgroup"
)

const eventBuffer = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("load config")
	}

	log := logging.New(cfg.Log, cfg.App)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info().Msg("connected to database")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var publisher events.Publisher = events.Nop()
	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, cfg.App.Name, eventBuffer, log)
		kp.Start()
		defer kp.Close()
		publisher = kp
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.OrderTopic).Msg("publishing order events")
	}

	var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		limitStore = ratelimit.NewRedisStore(rdb)
	}
	limiter := ratelimit.New(limitStore, ratelimit.WithMetrics(m))

	vendorClient := vendor.NewClient(cfg.Vendor, log, m)
	coordinator := reservation.NewCoordinator(db, vendorClient, log, m)

	handler := api.NewRouter(api.Deps{
		Orders:    orders.NewService(db, cfg.Shop, coordinator, publisher, log, m),
		Products:  catalog.NewCatalog(db),
		Pricing:   pricing.NewService(db, log),
		Submitter: fulfillment.NewSubmitter(db, vendorClient, publisher, log, m),
		Syncer:    catalog.NewSyncer(db, vendorClient, log, m),
		Vendor:    vendorClient,
		Limiter:   limiter,
		DB:        db,
		Gatherer:  reg,
		Log:       log,
	}, api.Options{
		AdminToken: cfg.Admin.APIToken,
		Production: cfg.App.IsProduction(),
		OrderRule:  ratelimit.Rule{MaxAttempts: cfg.RateLimit.OrderMaxAttempts, Window: cfg.RateLimit.OrderWindow},
		AuthRule:   ratelimit.Rule{MaxAttempts: cfg.RateLimit.AuthMaxAttempts, Window: cfg.RateLimit.AuthWindow},
	})

	if cfg.Admin.APIToken == "" {
		log.Warn().Msg("ADMIN_API_TOKEN is empty, admin endpoints will reject every request")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("env", cfg.App.Env).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
