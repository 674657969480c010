// cmd/reservation_service/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fb_logger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	archivemongo "github.com/flashsale/reservation-engine/internal/reservation/adapter/archive/mongo"
	rediscache "github.com/flashsale/reservation-engine/internal/reservation/adapter/cache"
	kafkaevent "github.com/flashsale/reservation-engine/internal/reservation/adapter/event"
	gormrepo "github.com/flashsale/reservation-engine/internal/reservation/adapter/repository/gorm"
	"github.com/flashsale/reservation-engine/internal/reservation/adapter/repository/gorm/model"
	httpctl "github.com/flashsale/reservation-engine/internal/reservation/adapter/controller/http"
	appconfig "github.com/flashsale/reservation-engine/internal/reservation/config"
	"github.com/flashsale/reservation-engine/internal/reservation/domain/repository"
	"github.com/flashsale/reservation-engine/internal/reservation/usecase"
	applogger "github.com/flashsale/reservation-engine/pkg/logger"
	"github.com/flashsale/reservation-engine/pkg/health"
	"github.com/flashsale/reservation-engine/pkg/jwt_service"
	"github.com/flashsale/reservation-engine/pkg/middleware"
)

// Usecases holds all usecase implementations the controllers and
// background workers are wired against.
type Usecases struct {
	Intake       usecase.IntakeUsecase
	Checkout     usecase.CheckoutUsecase
	Availability usecase.AvailabilityUsecase
	Catalog      usecase.CatalogUsecase
	Allocator    usecase.AllocatorUsecase
	Expiry       usecase.ExpiryUsecase
}

func main() {
	configPath := flag.String("config", "config.reservation.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := applogger.NewZapLogger()
	log.Info("Starting reservation engine")

	config, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration", "error", err)
	}

	db, err := initDatabase(config.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Address,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to redis", "error", err)
	}

	mongoDB, err := initMongo(ctx, config.Mongo, log)
	if err != nil {
		log.Fatal("Failed to initialize mongo", "error", err)
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
			log.Error("failed to disconnect mongo client", "error", err)
		}
	}()

	store := gormrepo.NewGormStore(db)

	bus := kafkaevent.NewKafkaBus(kafkaevent.KafkaConfig{
		Brokers:         config.Kafka.Brokers,
		RequestTopic:    config.Kafka.RequestTopic,
		DeadLetterTopic: config.Kafka.DeadLetterTopic,
		PartitionN:      config.Kafka.PartitionCount,
	}, rdb)
	defer func() {
		if err := bus.Close(); err != nil {
			log.Error("failed to close bus", "error", err)
		}
	}()

	cache := rediscache.NewRedisCache(rdb, rediscache.Config{
		StockTTL:             time.Duration(config.Cache.StockTTLSeconds) * time.Second,
		ActiveReservationTTL: time.Duration(config.Cache.ActiveReservationTTLSeconds) * time.Second,
		PurchasedTTL:         time.Duration(config.Cache.PurchasedTTLSeconds) * time.Second,
		RejectionTTL:         time.Duration(config.Cache.RejectionTTLSeconds) * time.Second,
	})

	events := kafkaevent.NewKafkaEventPublisher(config.Kafka.Brokers, config.Kafka.ReservationEventTopic)
	defer func() {
		if err := events.Close(); err != nil {
			log.Error("failed to close event publisher", "error", err)
		}
	}()

	archive := archivemongo.NewArchive(mongoDB, log)
	if err := archive.EnsureIndexes(ctx); err != nil {
		log.Error("failed to ensure archive indexes", "error", err)
	}

	usecases := initUsecases(store, cache, bus, events, config, log)

	runBackgroundWorkers(ctx, usecases, bus, archive, config, log)

	tokens := jwt_service.NewJWTService(jwt_service.Config{
		SecretKey:            config.JWT.SecretKey,
		AccessTokenDuration:  config.JWT.AccessTokenDuration,
		RefreshTokenDuration: config.JWT.RefreshTokenDuration,
		Issuer:               config.JWT.Issuer,
	})

	handler := httpctl.NewReservationHandler(usecases.Intake, usecases.Checkout, usecases.Availability, log)
	h := health.NewHealth(log, db, rdb, joinBrokers(config.Kafka.Brokers))

	app := initHTTPServer(config.Server, handler, tokens, h, log)

	go func() {
		log.Info("Starting Fiber server", "addr", config.Server.Address)
		if err := app.Listen(config.Server.Address); err != nil {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	handleGracefulShutdown(cancel, app, log)
}

func initDatabase(cfg appconfig.DatabaseConfig, log applogger.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)

	gormLog := gormlogger.New(
		&gormLogAdapter{log: log},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, err
	}
	log.Info("Connected to database")

	if err := db.AutoMigrate(
		&model.Product{}, &model.Inventory{}, &model.Reservation{},
		&model.UserPurchase{}, &model.StockTransaction{}, &model.Order{},
	); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetConnMaxLifetime(cfg.MaxLife)

	return db, nil
}

// gormLogAdapter routes GORM's own SQL logging through the application's
// structured logger instead of GORM's default stdout writer.
type gormLogAdapter struct {
	log applogger.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func initMongo(ctx context.Context, cfg appconfig.MongoConfig, log applogger.Logger) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	log.Info("Connected to mongo", "uri", cfg.URI, "database", cfg.Database)
	return client.Database(cfg.Database), nil
}

func initUsecases(store repository.Store, cache *rediscache.RedisCache, bus *kafkaevent.KafkaBus, events *kafkaevent.KafkaEventPublisher, config *appconfig.Config, log applogger.Logger) *Usecases {
	intake := usecase.NewIntakeUsecase(store, cache, bus, 10*time.Second, log)

	allocator := usecase.NewAllocatorUsecase(store, cache, bus, events, intake, usecase.AllocatorConfig{
		BatchSize:           config.Allocator.BatchSize,
		BatchMaxWaitMillis:  config.Allocator.BatchMaxWaitMillis,
		HoldDurationSeconds: config.Allocator.HoldDurationSeconds,
		MaxApplyRetries:     config.Allocator.MaxApplyRetries,
	}, log)

	expiry := usecase.NewExpiryUsecase(store, cache, events, usecase.ExpiryConfig{
		SweepInterval: time.Duration(config.Expiry.SweepIntervalSeconds) * time.Second,
		BatchSize:     config.Expiry.SweepBatchSize,
	}, log)

	availability := usecase.NewAvailabilityUsecase(store, cache, events, usecase.AvailabilityConfig{
		StockCacheTTLSeconds: config.Cache.StockTTLSeconds,
		LowStockThreshold:    config.Availability.LowStockThreshold,
	}, log)

	checkout := usecase.NewCheckoutUsecase(store, cache, events, log)
	catalog := usecase.NewCatalogUsecase(store, log)

	return &Usecases{
		Intake: intake, Checkout: checkout, Availability: availability,
		Catalog: catalog, Allocator: allocator, Expiry: expiry,
	}
}

// runBackgroundWorkers starts one allocator goroutine per bus partition
// (the single-writer discipline spec §4.3 requires), the expiry
// reconciler's sweep loop, and the archive's ordinary consumer-group
// tail of the event stream.
func runBackgroundWorkers(ctx context.Context, usecases *Usecases, bus *kafkaevent.KafkaBus, archive *archivemongo.Archive, config *appconfig.Config, log applogger.Logger) {
	var wg sync.WaitGroup

	for p := 0; p < bus.PartitionCount(); p++ {
		partition := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("starting allocator partition worker", "partition", partition)
			usecases.Allocator.RunPartition(ctx, partition)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("starting expiry reconciler")
		usecases.Expiry.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("starting order audit archive consumer")
		archive.RunConsumer(ctx, config.Kafka.Brokers, config.Kafka.ReservationEventTopic, config.Kafka.ArchiveConsumerGroup)
	}()
}

func initHTTPServer(cfg appconfig.ServerConfig, handler *httpctl.ReservationHandler, tokens jwt_service.TokenService, h *health.Health, log applogger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			log.Error("HTTP error", "status", code, "error", err.Error())
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fb_logger.New())
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, err interface{}) {
			log.Error("recovered from panic", "error", err, "stack", string(debug.Stack()))
			c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
	}))
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.CorrelationID(log))
	app.Use(middleware.RequestLogger(log))

	for path, fn := range h.GetHandlers() {
		app.Get(path, fn)
	}

	app.Use(middleware.Identity(tokens))
	handler.RegisterRoutes(app)

	return app
}

func handleGracefulShutdown(cancel context.CancelFunc, app *fiber.App, log applogger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	if err := app.Shutdown(); err != nil {
		log.Error("error during HTTP server shutdown", "error", err)
	}

	cancel()
	log.Info("Shutdown complete")
}

func joinBrokers(brokers []string) string {
	if len(brokers) == 0 {
		return ""
	}
	return brokers[0]
}
