package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/app"
	"github.com/Freeeeeet/lesson_scheduler/internal/config"
	"github.com/Freeeeeet/lesson_scheduler/internal/controller/httpapi"
	"github.com/Freeeeeet/lesson_scheduler/internal/controller/telegram"
	"github.com/Freeeeeet/lesson_scheduler/internal/provisioning"
	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting lesson scheduler",
		zap.String("environment", cfg.Environment),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Bool("postgres", cfg.DBDSN != ""),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.Bool("zoom", cfg.ZoomConfigured()),
		zap.Bool("telegram", cfg.TelegramToken != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Lesson scheduler stopped with error", zap.Error(err))
	}
	logger.Info("Lesson scheduler stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis is not reachable, continuing", zap.Error(err))
		}
	}

	var gateway provisioning.Gateway = provisioning.Unconfigured{}
	if cfg.ZoomConfigured() {
		gateway = provisioning.NewZoomGateway(provisioning.ZoomConfig{
			AccountID:    cfg.ZoomAccountID,
			ClientID:     cfg.ZoomClientID,
			ClientSecret: cfg.ZoomClientSecret,
			APIURL:       cfg.ZoomAPIURL,
			OAuthURL:     cfg.ZoomOAuthURL,
		}, &http.Client{Timeout: cfg.ProvisioningTimeout}, logger.Named("zoom"))
	} else {
		logger.Warn("Zoom credentials are not set, lessons will be created without meeting links")
	}

	var tgBot *bot.Bot
	var notifier service.Notifier
	if cfg.TelegramToken != "" {
		tgBot, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
		notifier = telegram.NewNotifier(tgBot, cfg.Location())
	}

	userService := service.NewUserService(st.users, logger)
	courseService := service.NewCourseService(st.courses, st.users, logger)
	lessonService := service.NewLessonService(st.lessons, st.courses, st.users, gateway, service.LessonOptions{
		ProvisioningTimeout: cfg.ProvisioningTimeout,
		PriceFromMentorRate: cfg.LessonPriceFromMentorRate,
	}, logger)
	enrollmentService := service.NewEnrollmentService(
		st.enrollments,
		st.courses,
		st.users,
		lessonService,
		service.ExactSlotConflictPolicy{},
		notifier,
		logger,
	)
	reconciler := service.NewReconciler(st.lessons, st.users, gateway, notifier, service.ReconcilerOptions{
		RecordingMaxAttempts: cfg.RecordingMaxAttempts,
		RecordingBatchSize:   cfg.RecordingBatchSize,
		GatewayTimeout:       cfg.ProvisioningTimeout,
	}, logger.Named("reconciler"))

	var locker app.Locker = app.LocalLocker{}
	routerOpts := httpapi.RouterOptions{AllowedOrigins: cfg.CORSAllowedOrigins}
	if rdb != nil {
		locker = app.NewRedisLocker(rdb)
		routerOpts.RateLimit = httpapi.NewRateLimiter(rdb, logger).
			Limit("api", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	scheduler := app.NewScheduler(reconciler, locker, cfg.SweepInterval, cfg.SweepLockTTL, logger.Named("scheduler"))

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(userService, courseService, enrollmentService, lessonService, reconciler, logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handler, routerOpts, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if tgBot != nil {
		controller := telegram.NewController(tgBot, userService, lessonService, cfg.Location(), logger.Named("telegram"))
		if err := controller.RegisterHandlers(ctx); err != nil {
			logger.Warn("Failed to register bot commands", zap.Error(err))
		}
		g.Go(func() error {
			return controller.Start(gctx)
		})
	}

	return g.Wait()
}
