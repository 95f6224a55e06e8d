package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/hirewire/chat-service/internal/config"
	"github.com/hirewire/chat-service/internal/directory"
	"github.com/hirewire/chat-service/internal/domain"
	"github.com/hirewire/chat-service/internal/handler"
	"github.com/hirewire/chat-service/internal/hub"
	"github.com/hirewire/chat-service/internal/middleware"
	"github.com/hirewire/chat-service/internal/notify"
	"github.com/hirewire/chat-service/internal/policy"
	"github.com/hirewire/chat-service/internal/presence"
	"github.com/hirewire/chat-service/internal/service"
	"github.com/hirewire/chat-service/internal/store"
	"github.com/hirewire/chat-service/pkg/database"
	"github.com/hirewire/chat-service/pkg/jwt"
	"github.com/hirewire/chat-service/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		return
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("starting chat service")

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("chat service exited")
	}
	logger.Info().Msg("chat service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.L()

	// Database and persistence layer.
	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	if err := database.AutoMigrate(db,
		&domain.MessageModel{},
		&directory.UserModel{},
		&directory.JobModel{},
	); err != nil {
		return fmt.Errorf("database migration: %w", err)
	}
	msgStore := store.NewGormMessageRepository(db)

	// Directories and access policy.
	users := directory.NewGormUserDirectory(db)
	jobs := directory.NewGormJobDirectory(db)
	accessPolicy := policy.New(jobs)
	tokens := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	// Presence store. Redis keeps last-seen across restarts; an empty
	// address falls back to the in-process store for local development.
	var presenceStore presence.Store
	if cfg.Redis.Address != "" {
		presenceStore, err = presence.NewRedisStore(presence.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("presence store: %w", err)
		}
		logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	} else {
		presenceStore = presence.NewMemoryStore()
		logger.Warn().Msg("redis not configured, using in-memory presence store")
	}
	defer presenceStore.Close()

	// Notification pipeline.
	var notifier notify.Notifier
	if cfg.Kafka.Enabled {
		notifier, err = notify.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
	} else {
		notifier = notify.NewLogNotifier()
		logger.Info().Msg("kafka disabled, notifications are logged only")
	}
	defer notifier.Close()

	// Realtime core.
	wsHub := hub.New()
	chatSvc := service.NewChatService(wsHub, msgStore, accessPolicy, tokens, users, jobs, presenceStore, notifier)

	// HTTP surface.
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(log.GinMiddleware(logger), gin.Recovery())

	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket)
	router.GET("/ws", wsHandler.Serve)

	httpHandler := handler.NewHTTPHandler(msgStore, accessPolicy, chatSvc, presenceStore)
	httpHandler.RegisterRoutes(router, middleware.Auth(tokens))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("chat service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down chat service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
