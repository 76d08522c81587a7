package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"

	"github.com/owlshop/owlshop/internal"
	"github.com/owlshop/owlshop/internal/domain"
	"github.com/owlshop/owlshop/internal/handler"
	"github.com/owlshop/owlshop/internal/notify"
	"github.com/owlshop/owlshop/internal/postgres"
	"github.com/owlshop/owlshop/internal/provider"
	"github.com/owlshop/owlshop/internal/service"
	"github.com/owlshop/owlshop/internal/telemetry"
	"github.com/owlshop/owlshop/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// database/sql connection for migrations only
	logger.Info().Msg("connecting to database")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info().Msg("running database migrations")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// pgx pool for the application
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	// NATS for order notifications. The bus is optional infrastructure:
	// checkout works without it, confirmations just go undelivered.
	var notifier domain.NotificationSender
	var notifyWorker *worker.Worker
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("owlshop-server"))
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.NATSURL).Msg("nats unavailable, order notifications disabled")
	} else {
		defer nc.Close()
		notifier = notify.NewPublisher(nc, logger)
		notifyWorker = worker.NewWorker(nc, worker.Config{}, logger)
	}

	metrics := telemetry.NewBusinessMetrics(cfg.MetricsNamespace)

	providers := provider.NewRegistry(
		provider.NewCODAdapter(),
		provider.NewVNPayAdapter(cfg.VNPay, nil),
		provider.NewMoMoAdapter(cfg.MoMo, nil),
		provider.NewStripeAdapter(cfg.Stripe),
	)

	checkoutService := service.NewCheckoutService(
		store, store, store, providers, notifier, metrics, logger,
		cfg.ShippingFee, cfg.Currency,
	)
	orderService := service.NewOrderService(store, metrics, logger)
	paymentService := service.NewPaymentService(store, store, providers, metrics, logger, cfg.Currency)
	reconcileService := service.NewReconcileService(store, store, providers, metrics, logger)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	handler.RegisterRoutes(e,
		handler.NewOrderHandler(checkoutService, orderService, logger),
		handler.NewPaymentHandler(paymentService, logger),
		handler.NewCallbackHandler(reconcileService, logger),
		handler.Health(func() error { return pool.Ping(context.Background()) }),
	)

	if notifyWorker != nil {
		go func() {
			if err := notifyWorker.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("notification worker failed")
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	go func() {
		logger.Info().Str("address", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
