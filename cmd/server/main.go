package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/app"
	"github.com/Freeeeeet/tutor_booking/internal/cache"
	"github.com/Freeeeeet/tutor_booking/internal/config"
	"github.com/Freeeeeet/tutor_booking/internal/controller/rest"
	"github.com/Freeeeeet/tutor_booking/internal/controller/telegram"
	"github.com/Freeeeeet/tutor_booking/internal/meeting"
	"github.com/Freeeeeet/tutor_booking/internal/notification"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/Freeeeeet/tutor_booking/internal/service/ports"
	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting tutor booking server",
		zap.String("environment", cfg.Environment),
		zap.Bool("env_file_loaded", cfg.EnvFileLoaded),
		zap.String("meeting_provider", cfg.MeetingProvider),
		zap.String("timezone", cfg.Location.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		_ = migrator.Close()
		return err
	}
	_ = migrator.Close()

	store := repository.NewStore(pool, logger)

	rooms, err := newRoomProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create meeting room provider: %w", err)
	}

	var (
		tgBot  *bot.Bot
		sender notification.Sender
	)
	if cfg.TelegramToken != "" {
		tgBot, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		sender = notification.NewTelegramSender(tgBot)
	} else {
		logger.Warn("TELEGRAM_TOKEN is not set, notifications are written to the log")
		sender = notification.NewLogSender(logger)
	}

	dispatcher := notification.NewDispatcher(store.Users(), sender, cfg.Location, cfg.NotifyQueueSize, cfg.NotifyWorkers, logger)
	dispatcher.Start(context.WithoutCancel(ctx))

	bookingService := service.NewBookingService(store, rooms, dispatcher, logger)
	slotService := service.NewSlotService(store, dispatcher, cfg.Location, cfg.GenerateWeeksAhead, logger)

	routerCfg := rest.RouterConfig{
		JWTSecret:   []byte(cfg.JWTSecret),
		CORSOrigins: cfg.CORSOrigins,
	}
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer func() { _ = client.Close() }()

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis is unavailable, idempotency keys will be ignored until it recovers", zap.Error(err))
		}
		routerCfg.Idempotency = cache.NewIdempotencyStore(client, cache.DefaultIdempotencyTTL)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := rest.NewHandler(bookingService, slotService, cfg.Location, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rest.NewRouter(handler, routerCfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if tgBot != nil {
		botController := telegram.NewBotController(tgBot, repository.NewUserRepository(pool), bookingService, slotService, cfg.Location, logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Telegram bot commands are not registered", zap.Error(err))
		}
		go botController.Start(ctx)
	}

	scheduler := app.NewScheduler(slotService, 24*time.Hour, cfg.SweepInterval, logger)
	scheduler.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}
	scheduler.Stop()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Notification queue was not drained", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}

func newRoomProvider(ctx context.Context, cfg *config.Config) (ports.RoomProvider, error) {
	if cfg.MeetingProvider == config.MeetingProviderGoogle {
		return meeting.NewGoogleMeetProvider(ctx, cfg.GoogleCredentialsFile, cfg.GoogleCalendarID)
	}
	return meeting.NewJitsiProvider(cfg.MeetingBaseURL)
}
