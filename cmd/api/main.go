// cmd/api/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/stock-reservation/internal/config"
	"github.com/your-org/stock-reservation/internal/domain/events"
	"github.com/your-org/stock-reservation/internal/domain/inventory"
	"github.com/your-org/stock-reservation/internal/domain/payment"
	"github.com/your-org/stock-reservation/internal/infrastructure/database/memory"
	"github.com/your-org/stock-reservation/internal/infrastructure/database/postgres"
	"github.com/your-org/stock-reservation/internal/infrastructure/database/redis"
	kafkabus "github.com/your-org/stock-reservation/internal/infrastructure/messaging/kafka"
	"github.com/your-org/stock-reservation/internal/interfaces/http"
	"github.com/your-org/stock-reservation/internal/interfaces/messaging"
	"github.com/your-org/stock-reservation/internal/pkg/idempotency"
	"github.com/your-org/stock-reservation/internal/pkg/lock"
	"github.com/your-org/stock-reservation/internal/pkg/logger"
	"github.com/your-org/stock-reservation/internal/pkg/metrics"
)

// backends are the storage and coordination adapters chosen by DB_DRIVER
type backends struct {
	inventory   inventory.Store
	payments    payment.Repository
	locker      lock.Locker
	idempotency idempotency.Store
	redis       *goredis.Client
	checks      map[string]http.HealthCheck
	closers     []func() error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logr := logger.New(cfg.Logging)
	logr.Infof("🚀 Starting %s v%s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	m := metrics.New("stock_reservation")

	b, err := openBackends(cfg, logr)
	if err != nil {
		logr.WithError(err).Fatal("Failed to initialise storage")
	}
	defer b.close(logr)

	publisher, closePublisher := newPublisher(cfg, logr)
	defer closePublisher()

	inventoryOpts := inventory.Options{
		Store:     b.inventory,
		Locker:    b.locker,
		Publisher: publisher,
		Logger:    logr,
		Metrics:   m,
		Config:    cfg.Reservation,
		Topics:    cfg.Kafka.Topics,
	}
	inventoryService := inventory.NewService(inventoryOpts)
	coordinator := inventory.NewCoordinator(inventoryOpts)

	processor := payment.NewProcessor(payment.ProcessorOptions{
		Repository:  b.payments,
		Gateway:     newGateway(cfg.Payment),
		Idempotency: b.idempotency,
		Locker:      b.locker,
		Publisher:   publisher,
		Logger:      logr,
		Metrics:     m,
		Config:      cfg.Payment,
		Topics:      cfg.Kafka.Topics,
	})

	server := http.NewServer(cfg, http.Dependencies{
		Inventory:   inventoryService,
		Coordinator: coordinator,
		Payments:    processor,
		Redis:       b.redis,
		Metrics:     m,
		Logger:      logr,
		Checks:      b.checks,
	})

	logr.Info("✅ All systems operational!")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logr.Info("👋 Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})
	g.Go(func() error {
		return inventoryService.RunExpirySweeper(gctx, cfg.Reservation.ExpirySweepInterval)
	})

	if cfg.Kafka.Enabled {
		handlers := messaging.NewHandlers(coordinator, processor, logr)
		var consumers []*kafkabus.Consumer
		for topic, handler := range handlers.Routes(cfg.Kafka.Topics) {
			consumers = append(consumers, kafkabus.NewConsumer(kafkabus.NewReader(cfg.Kafka, topic), topic, handler, kafkabus.ConsumerOptions{
				Logger:  logr,
				Metrics: m,
			}))
		}
		g.Go(func() error {
			return kafkabus.RunAll(gctx, consumers...)
		})
	}

	if err := g.Wait(); err != nil {
		logr.WithError(err).Error("Service stopped with error")
	}

	logr.Info("✅ Server shutdown completed")
}

func openBackends(cfg *config.Config, logr *logrus.Logger) (*backends, error) {
	if cfg.Database.Driver == "memory" {
		logr.Warn("⚠️ Using in-memory storage, data is lost on restart")
		return &backends{
			inventory:   memory.NewInventoryStore(),
			payments:    memory.NewPaymentRepository(),
			locker:      lock.NewMemoryLocker(),
			idempotency: idempotency.NewMemoryStore(cfg.Payment.IdempotencyTTL),
			checks:      map[string]http.HealthCheck{},
		}, nil
	}

	b := &backends{}

	// Connect to database
	db, err := postgres.NewConnection(cfg, logr)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, db.Close)

	// Connect to Redis
	redisClient, err := redis.NewConnection(cfg, logr)
	if err != nil {
		b.close(logr)
		return nil, err
	}
	b.closers = append(b.closers, redisClient.Close)

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB(), logr)
	if err := migration.RunAutoMigrations(); err != nil {
		b.close(logr)
		return nil, err
	}
	if err := migration.CreateIndexes(); err != nil {
		logr.WithError(err).Warn("⚠️ Index creation failed")
	}

	if cfg.Database.SeedData || cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			logr.WithError(err).Warn("⚠️ Data seeding failed")
		}
	}

	b.inventory = postgres.NewInventoryStore(db.GetDB())
	b.payments = postgres.NewPaymentRepository(db.GetDB())
	b.locker = redis.NewLocker(redisClient.GetClient())
	b.idempotency = redis.NewIdempotencyStore(redisClient.GetClient(), cfg.Payment.IdempotencyTTL)
	b.redis = redisClient.GetClient()
	b.checks = map[string]http.HealthCheck{
		"database": func(context.Context) error { return db.Health() },
		"redis":    func(context.Context) error { return redisClient.Health() },
	}
	return b, nil
}

func (b *backends) close(logr logrus.FieldLogger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logr.WithError(err).Warn("Failed to close connection")
		}
	}
	b.closers = nil
}

func newPublisher(cfg *config.Config, logr logrus.FieldLogger) (events.Publisher, func()) {
	if !cfg.Kafka.Enabled {
		logr.Info("Kafka disabled, events are written to the log")
		return events.NewLogPublisher(logr), func() {}
	}

	publisher := kafkabus.NewPublisher(kafkabus.NewWriter(cfg.Kafka))
	logr.WithField("brokers", cfg.Kafka.Brokers).Info("✅ Kafka publisher ready")
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logr.WithError(err).Warn("Failed to close Kafka writer")
		}
	}
}

func newGateway(cfg config.PaymentConfig) payment.Gateway {
	if cfg.Gateway == "http" {
		return payment.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayKey, cfg.GatewayTimeout)
	}
	return payment.NewMockGateway(cfg.SuccessRate, 500*time.Millisecond, time.Now().UnixNano())
}
