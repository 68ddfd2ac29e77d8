package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-livechat/internal/config"
	"github.com/noah-isme/gema-livechat/internal/database"
	"github.com/noah-isme/gema-livechat/internal/handler"
	"github.com/noah-isme/gema-livechat/internal/messaging"
	"github.com/noah-isme/gema-livechat/internal/middleware"
	"github.com/noah-isme/gema-livechat/internal/observability"
	"github.com/noah-isme/gema-livechat/internal/repository"
	"github.com/noah-isme/gema-livechat/internal/router"
	"github.com/noah-isme/gema-livechat/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.SyncSecret == "" {
		logger.Warn().Msg("sync secret is not configured; sync tokens cannot be issued")
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled; rate limits are per node and the word list is not cached")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	publisher := messaging.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())
	store := repository.NewStore(db)

	syncService := service.NewSyncService(store, cfg.SyncPullLimit, redisClient, cfg.SyncChannel, natsConn, logger)
	limiter := service.NewRateLimiter(redisClient, cfg.RedisPrefix, cfg.RateLimitMax, cfg.RateLimitWindow)
	blockedWords := service.NewBlockedWordService(store, redisClient, cfg.RedisPrefix, cfg.BlockedWordsCacheTTL, validate, logger)
	tokenService := service.NewTokenService(store.Users(), cfg.SyncSecret, cfg.SyncTokenTTL, cfg.AppName, logger)
	mutationService := service.NewMutationService(store, limiter, blockedWords, publisher, syncService, validate, logger)
	eventService := service.NewEventService(store, syncService, validate, logger)
	participantService := service.NewParticipantService(store, cfg.ParticipantActiveSpan, logger)
	moderationLogService := service.NewModerationLogService(store.ModerationLogs(), logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	app.Get("/metrics", observability.MetricsHandler())
	router.Register(app, cfg, router.Dependencies{
		TokenHandler:         handler.NewTokenHandler(tokenService, logger),
		SyncHandler:          handler.NewSyncHandler(tokenService, mutationService, syncService, validate, logger),
		EventHandler:         handler.NewEventHandler(eventService, participantService, logger),
		BlockedWordHandler:   handler.NewBlockedWordHandler(blockedWords, logger),
		ModerationLogHandler: handler.NewModerationLogHandler(moderationLogService, logger),
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
		PublisherMode:        messaging.Mode(publisher),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	syncService.Start(ctx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
