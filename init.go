package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tournevent/fulfillment/internal/config"
	"github.com/tournevent/fulfillment/internal/oauthstate"
	"github.com/tournevent/fulfillment/internal/server"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/carrier/melhorenvio"
	"github.com/tournevent/fulfillment/pkg/catalog"
	"github.com/tournevent/fulfillment/pkg/finance"
	"github.com/tournevent/fulfillment/pkg/orders"
	"github.com/tournevent/fulfillment/pkg/shipping"
	"github.com/tournevent/fulfillment/pkg/webhook"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, zap.AtomicLevel, error) {
	return telemetry.NewLogger(telemetry.LoggerConfig{
		Level:       cfg.LogLevel,
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
		Environment: cfg.CarrierEnvironment,
	})
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version, cfg.Attributes()...)
	return shutdown, err
}

func openDatabase(cfg *config.Config) (*storage.Database, error) {
	return storage.Open(storage.Options{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DatabaseMaxOpen,
		MaxIdleConns:    cfg.DatabaseMaxIdle,
		ConnMaxLifetime: cfg.DatabaseMaxLifetime,
		AutoMigrate:     cfg.DatabaseAutoMigrate,
		Tracing:         cfg.OTELEnabled,
	})
}

// initStateStore uses Redis when configured so every replica accepts the
// OAuth callback, and process memory otherwise.
func initStateStore(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*oauthstate.Manager, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, OAuth state is kept in memory")
		return oauthstate.NewManager(oauthstate.NewMemoryStore(), oauthstate.DefaultTTL), func() {}, nil
	}

	store, err := oauthstate.NewRedisStore(ctx, oauthstate.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	return oauthstate.NewManager(store, oauthstate.DefaultTTL), closeFn, nil
}

func newLifecycle(db *storage.Database, notifier orders.Notifier, observer orders.Observer, logger *otelzap.Logger) *orders.Lifecycle {
	var opts []orders.Option
	if observer != nil {
		opts = append(opts, orders.WithObserver(observer))
	}
	return orders.NewLifecycle(storage.NewOrderRepository(db.DB), notifier, logger, opts...)
}

type app struct {
	deps     server.Deps
	notifier *webhook.Notifier
}

// buildApp wires every component. Settings are read from store on each call
// so a SIGHUP reload rotates credentials and endpoints without a restart.
func buildApp(store *config.Store, db *storage.Database, states *oauthstate.Manager, logger *otelzap.Logger) *app {
	cfg := store.Current()
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	carrierSettings := func() melhorenvio.Settings {
		c := store.Current()
		return melhorenvio.Settings{
			BaseURL:      c.CarrierBaseURL(),
			ClientID:     c.CarrierClientID,
			ClientSecret: c.CarrierClientSecret,
			RedirectURI:  c.CarrierCallbackURL,
			UserAgent:    c.CarrierUserAgent,
			Scopes:       c.CarrierScopes,
			Receipt:      c.CarrierReceipt,
			OwnHand:      c.CarrierOwnHand,
		}
	}
	tokenSettings := func() melhorenvio.TokenSettings {
		c := store.Current()
		return melhorenvio.TokenSettings{
			Environment:    c.CarrierEnvironment,
			SafetyMargin:   c.TokenSafetyMargin,
			RefreshTimeout: c.TokenRefreshTimeout,
		}
	}

	api := melhorenvio.NewAPIClient(melhorenvio.Config{
		Settings: carrierSettings,
		Timeout:  cfg.CarrierTimeout,
		UseMock:  cfg.CarrierUseMock,
	})
	tokens := melhorenvio.NewTokenStore(storage.NewTokenRepository(db.DB), api, tokenSettings, logger,
		melhorenvio.WithRefreshObserver(metrics))
	carrier := melhorenvio.NewWithAPIClient(api, tokens, carrierSettings, logger, otel.Tracer("melhorenvio")).
		WithErrorObserver(metrics)

	feed := catalog.NewFeedClient(func() catalog.FeedSettings {
		c := store.Current()
		return catalog.FeedSettings{BaseURL: c.CatalogFeedURL, Token: c.CatalogFeedToken}
	}, cfg.CatalogFeedTimeout)
	products := catalog.NewRouter(storage.NewProductRepository(db.DB), feed, func() bool {
		return store.Current().CatalogFeedEnabled()
	}, logger)

	financeSvc := finance.NewService(storage.NewFinancialRepository(db.DB), logger)

	aggregator := shipping.NewAggregator(carrier, products, financeSvc, func() shipping.Settings {
		c := store.Current()
		return shipping.Settings{
			OriginZip:       c.CarrierOriginPostalCode,
			DefaultWeightKg: c.DefaultWeightKg,
			DefaultSize: shipping.Dimensions{
				HeightCm: c.DefaultHeightCm,
				WidthCm:  c.DefaultWidthCm,
				LengthCm: c.DefaultLengthCm,
			},
		}
	}, logger)

	notifier := webhook.New(webhook.Config{
		URL:       func() string { return store.Current().WebhookURL },
		Timeout:   cfg.WebhookTimeout,
		QueueSize: cfg.WebhookQueueSize,
		Workers:   cfg.WebhookWorkers,
	}, metrics, logger)

	return &app{
		deps: server.Deps{
			Carrier:  carrier,
			Tokens:   tokens,
			States:   states,
			Shipping: aggregator,
			Catalog:  products,
			Orders:   newLifecycle(db, notifier, metrics, logger),
			Finance:  financeSvc,
			Metrics:  metrics,
		},
		notifier: notifier,
	}
}
