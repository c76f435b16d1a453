package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tourbook/internal/api"
	"tourbook/internal/capacity"
	"tourbook/internal/config"
	"tourbook/internal/database"
	"tourbook/internal/domain"
	"tourbook/internal/events"
	"tourbook/internal/gateway"
	"tourbook/internal/logging"
	"tourbook/internal/metrics"
	"tourbook/internal/notify"
	"tourbook/internal/repository"
	"tourbook/internal/service"
	"tourbook/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := buildQueue(cfg, redisClient, &logger)
	notifier := notify.NewEmitter(db, queue, &logger)
	eventBus := events.NewEventBus()

	ledger := capacity.NewLedger(db, &logger)
	gw := gateway.NewClient(cfg.Payment, &logger)

	bookingService := buildBookingService(cfg, db, ledger, notifier, eventBus, &logger)
	paymentService := buildPaymentService(cfg, db, gw, notifier, eventBus, &logger)

	startNotifyWorker(ctx, cfg, queue, &logger)
	startCompletionSweep(ctx, cfg, bookingService, &logger)
	startBackup(ctx, cfg, &logger)
	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.Server, bookingService, paymentService, &logger)
	return serve(ctx, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// buildQueue prefers redis with an in-memory fallback; without redis the
// delivery queue is purely in-process.
func buildQueue(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.NotificationQueue {
	memory := repository.NewMemoryNotificationQueue()
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisNotificationQueue(redisClient, cfg.Notify.QueueKey, cfg.Notify.DeadLetterKey)
	return repository.NewFailoverNotificationQueue(primary, memory, logger)
}

func buildBookingService(
	cfg *config.Config,
	db *database.DB,
	ledger *capacity.Ledger,
	notifier domain.Notifier,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) domain.BookingService {
	return service.NewBookingService(db, db, ledger, notifier, eventBus, cfg.Booking.MaxAdvanceDays, logger)
}

func buildPaymentService(
	cfg *config.Config,
	db *database.DB,
	gw domain.PaymentGateway,
	notifier domain.Notifier,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) domain.PaymentService {
	return service.NewPaymentService(
		db, gw, notifier, eventBus,
		cfg.Payment.Currency,
		cfg.Payment.WebhookSecret,
		time.Duration(cfg.Payment.ToleranceSeconds)*time.Second,
		logger,
	)
}

func startNotifyWorker(ctx context.Context, cfg *config.Config, queue domain.NotificationQueue, logger *zerolog.Logger) {
	var sink domain.DeliverySink
	if cfg.Notify.SinkURL != "" {
		sink = notify.NewWebhookSink(cfg.Notify.SinkURL)
	} else {
		sink = notify.NewLogSink(logger)
	}

	w := worker.NewNotifyWorker(queue, sink, worker.RetryPolicy{MaxRetries: cfg.Notify.MaxRetries}, logger)
	go w.Start(ctx)
}

func startCompletionSweep(ctx context.Context, cfg *config.Config, bookings domain.BookingService, logger *zerolog.Logger) {
	if !cfg.Booking.CompletionEnabled {
		return
	}

	interval, err := time.ParseDuration(cfg.Booking.CompletionSweep)
	if err != nil || interval <= 0 {
		logger.Warn().Str("interval", cfg.Booking.CompletionSweep).Msg("invalid completion sweep interval, using 1h")
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := bookings.CompleteDue(ctx); err != nil {
					logger.Error().Err(err).Msg("completion sweep failed")
				}
			}
		}
	}()
}

func startBackup(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}
	svc := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
	go svc.Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
