package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courtbook/internal/api"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/logging"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/policy"
	"courtbook/internal/pricing"
	"courtbook/internal/repository"
	"courtbook/internal/service"
	"courtbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(base, "api-main")

	if err := loadCatalogue(cfg, logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(base, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	sessionRepo := initSessionRepository(cfg, redisClient, logging.Component(base, "sessions-repo"))

	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.EventAll, func(e *events.Event) error {
		logger.Debug().Str("event_type", e.Type).RawJSON("payload", e.Payload).Msg("event")
		return nil
	})
	if publisher := initEventForwarding(ctx, cfg, eventBus, redisClient, logging.Component(base, "event-forwarder")); publisher != nil {
		defer func() { _ = publisher.Close() }()
	}

	bookingService := service.NewBookingService(
		db,
		eventBus,
		policy.FromConfig(cfg.Booking),
		pricing.FromConfig(cfg.Pricing),
		service.Catalog{
			Courts:         cfg.Courts,
			Members:        cfg.Members,
			PaymentMethods: cfg.PaymentMethods,
			Schedule:       cfg.Schedule.Parsed(),
			BookingBlocked: cfg.Booking.BookingBlocked,
			ExportSheet:    cfg.Exports.Sheet,
			Location:       cfg.Booking.Location(),
		},
		logging.Component(base, "bookings"),
	)
	sessionService := service.NewSessionService(sessionRepo, bookingService, service.SessionConfig{
		ConfirmPage:  cfg.Booking.ConfirmPage,
		LockTTL:      time.Duration(cfg.Booking.ConfirmLockTTL) * time.Second,
		CreateLimit:  cfg.Booking.SessionCreateLimit,
		CreateWindow: time.Duration(cfg.Booking.SessionCreateWindow) * time.Second,
	}, logging.Component(base, "sessions"))

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(base, "backup"))
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	httpServer := api.NewHTTPServer(cfg.API, bookingService, sessionService, db.PingContext, logging.Component(base, "http"))
	return serve(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logger, closer, nil
}

// loadCatalogue replaces the courts and members from config with the
// catalogue file when one exists.
func loadCatalogue(cfg *config.Config, logger *zerolog.Logger) error {
	courtsPath := os.Getenv("COURTS_PATH")
	if courtsPath == "" {
		courtsPath = "configs/courts.yaml"
	}
	data, err := os.ReadFile(courtsPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info().Str("courts_path", courtsPath).Msg("no catalogue file, using courts from config")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("courts_path", courtsPath).Msg("read courts")
		return err
	}

	var catalogue struct {
		Courts  []models.Court  `yaml:"courts"`
		Members []models.Member `yaml:"members"`
	}
	if err := yaml.Unmarshal(data, &catalogue); err != nil {
		logger.Error().Err(err).Str("courts_path", courtsPath).Msg("parse courts")
		return err
	}
	if len(catalogue.Courts) > 0 {
		cfg.Courts = catalogue.Courts
	}
	if len(catalogue.Members) > 0 {
		cfg.Members = catalogue.Members
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Courts validation failed")
		return err
	}

	logger.Info().Int("courts", len(cfg.Courts)).Int("members", len(cfg.Members)).Msg("catalogue loaded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initSessionRepository(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	ttl := time.Duration(cfg.Booking.SessionTTL) * time.Second
	memory := repository.NewMemorySessionRepository(ttl)
	if client == nil {
		logger.Info().Msg("session drafts kept in memory")
		return memory
	}
	return repository.NewFailoverSessionRepository(repository.NewRedisSessionRepository(client, ttl), memory, logger)
}

func initEventForwarding(ctx context.Context, cfg *config.Config, bus *events.EventBus, client *redis.Client, logger *zerolog.Logger) *events.AMQPPublisher {
	if cfg.Events.AMQPURL == "" {
		return nil
	}

	publisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp connection failed, events stay in-process")
		return nil
	}

	forwarder := worker.NewEventForwarder(publisher, client, worker.RetryPolicy{MaxRetries: cfg.Events.MaxRetries}, logger)
	forwarder.OnResult(metrics.IncEventForwarded)
	forwarder.Attach(bus)
	go forwarder.Start(ctx)

	logger.Info().Str("exchange", cfg.Events.Exchange).Msg("event forwarding to amqp enabled")
	return publisher
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
