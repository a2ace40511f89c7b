package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tournevent/fulfillment/internal/config"
	"github.com/tournevent/fulfillment/internal/server"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fulfillment",
	Short:   "Order fulfillment service - carrier integration, shipping quotes and order lifecycle",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Cancel pending orders older than the payment window and exit",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(serveCmd, sweepCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := config.NewStore(cfg)

	logger, level, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.Background())
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	states, closeStates, err := initStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStates()

	app := buildApp(store, db, states, logger)
	app.notifier.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.notifier.Close(closeCtx); err != nil {
			logger.Warn("Webhook queue not drained", zap.Error(err))
		}
	}()

	go watchReload(ctx, store, level, logger)

	logger.Info("Starting fulfillment service",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("carrier_environment", cfg.CarrierEnvironment),
		zap.Bool("carrier_mock", cfg.CarrierUseMock),
		zap.Bool("catalog_feed", cfg.CatalogFeedEnabled()),
	)

	srv := server.New(server.Config{
		Port:        cfg.Port,
		ServiceName: cfg.ServiceName,
		SettingsURL: func() string { return store.Current().CarrierSettingsURL },
	}, app.deps, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, _, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := newLifecycle(db, nil, nil, logger).Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	logger.Info("Sweep finished", zap.Int64("cancelled", n))
	return nil
}

// watchReload swaps in a fresh config snapshot on SIGHUP.
func watchReload(ctx context.Context, store *config.Store, level zap.AtomicLevel, logger *otelzap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(); err != nil {
				logger.Error("Config reload failed, keeping previous snapshot", zap.Error(err))
				continue
			}
			current := store.Current()
			level.SetLevel(telemetry.ParseLevel(current.LogLevel))
			logger.Info("Config reloaded",
				zap.String("carrier_environment", current.CarrierEnvironment),
				zap.String("log_level", level.String()),
			)
		}
	}
}
