package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canteen-service/config"
	"canteen-service/internal/api"
	"canteen-service/internal/broker"
	"canteen-service/internal/redisclient"
	"canteen-service/internal/service"
	"canteen-service/internal/store"
	"canteen-service/internal/util"
	"canteen-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting canteen service")

	tp, err := util.InitTracer("canteen-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	ctx := context.Background()
	handlerChecks := map[string]api.ReadyCheck{}

	var repo store.Repository
	switch cfg.Database.Driver {
	case "memory":
		repo = store.NewMemory()
		logger.Warn("Using in-memory store; data is lost on restart")
	case "postgres":
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				log.Fatalf("Failed to migrate database: %v", err)
			}
		}
		handlerChecks["database"] = func(ctx context.Context) error { return db.GetDB().PingContext(ctx) }
		repo = db
		log.Println("Database connected")
	default:
		log.Fatalf("Unknown STORE_DRIVER %q", cfg.Database.Driver)
	}
	defer repo.Close()

	var (
		guard service.InflightGuard
		cache service.CatalogCache
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		guard, cache = redisClient, redisClient
		handlerChecks["redis"] = redisClient.Ping
		log.Println("Redis connected")
	}

	retry := service.RetryPolicy{MaxAttempts: cfg.Business.OrderMaxAttempts, BaseDelay: 10 * time.Millisecond}
	orderService := service.NewOrderService(repo, guard, service.OrderOptions{
		Retry:   retry,
		Timeout: cfg.Business.OrderTimeout(),
	})
	accountService := service.NewAccountService(repo, retry, cfg.Business.MaxDeposit)
	catalogService := service.NewCatalogService(repo, cache, cfg.Business.CatalogCacheTTL())
	statsService := service.NewStatsService(repo)

	if cfg.Auth.BootstrapAdminID != "" {
		if err := accountService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminID, "Administrator", cfg.Auth.BootstrapAdminEmail); err != nil {
			log.Fatalf("Failed to create bootstrap admin: %v", err)
		}
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		publisher   worker.Publisher
		statsWorker *worker.StatsWorker
	)
	switch cfg.Kafka.Transport {
	case "local":
		publisher = broker.NewLocalPublisher(worker.NewStatsHandler(statsService))
	case "kafka":
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		publisher = producer
		log.Println("Kafka producer initialized")

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		statsWorker = worker.NewStatsWorker(consumer, statsService)
		go func() {
			if err := statsWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Stats worker error", zap.Error(err))
			}
		}()
	default:
		log.Fatalf("Unknown EVENTS_TRANSPORT %q", cfg.Kafka.Transport)
	}

	relay := worker.NewOutboxRelay(repo, publisher, cfg.Business.OutboxPollInterval(), cfg.Business.OutboxBatchSize)
	go func() {
		if err := relay.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Outbox relay error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, accountService, catalogService, statsService,
		api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	for name, check := range handlerChecks {
		handler.AddReadyCheck(name, check)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if statsWorker != nil {
		statsWorker.Stop()
	}

	log.Println("Server exited")
}
