package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	personcmd "github.com/tbc/persons/person-service/internal/command"
	"github.com/tbc/persons/person-service/internal/handler"
	personqry "github.com/tbc/persons/person-service/internal/query"
	"github.com/tbc/persons/person-service/internal/repository"
	"github.com/tbc/persons/shared/config"
	"github.com/tbc/persons/shared/events"
	"github.com/tbc/persons/shared/middleware"
	"github.com/tbc/persons/shared/pipeline"
	redisClient "github.com/tbc/persons/shared/redis"
	"github.com/tbc/persons/shared/uow"
)

func main() {
	var cfg config.Service
	if err := config.Parse(&cfg); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("person service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Service, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Database connection (write store)
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	// Redis connection (read model store + event streaming)
	redis, err := redisClient.NewClient(ctx, redisClient.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer redis.Close()

	if err := os.MkdirAll(cfg.ImageDir, 0o750); err != nil {
		return err
	}

	// --- request pipeline ---
	unitOfWork := uow.New(db, nil)
	logging, err := pipeline.NewLoggingBehavior(logger)
	if err != nil {
		return err
	}
	metrics, err := pipeline.NewMetricsBehavior(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	transaction, err := pipeline.NewTransactionBehavior(unitOfWork, logger)
	if err != nil {
		return err
	}
	commandPipeline := pipeline.New(
		logging,
		metrics,
		pipeline.NewValidationBehavior(middleware.Validator()),
		transaction,
	)

	// --- CQRS wiring ---
	publisher := events.NewPublisher(redis.Client)

	writeRepo := repository.NewPersonWriteRepository(unitOfWork)
	readRepo := repository.NewPersonReadRepository(db, redis.Client, cfg.CacheTTL, logger)

	commandSvc := personcmd.NewPersonCommandService(commandPipeline, writeRepo, readRepo, publisher, logger)
	querySvc := personqry.NewPersonQueryService(readRepo)

	personHandler := handler.NewPersonHandler(commandSvc, querySvc, cfg.ImageDir)
	auth := middleware.AuthMiddleware(middleware.AuthConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		Leeway: 30 * time.Second,
	})

	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logger))

	v1 := router.Group("/v1/persons")
	{
		v1.GET("", personHandler.ListPersons)
		v1.GET("/:personId", personHandler.GetPerson)
		v1.POST("", auth, personHandler.CreatePerson)
		v1.PATCH("/:personId", auth, personHandler.UpdatePerson)
		v1.DELETE("/:personId", auth, personHandler.DeletePerson)
		v1.PUT("/:personId/image", auth, personHandler.UploadImage)
	}
	router.GET("/v1/cities/:cityId/stats", personHandler.GetCityStats)

	router.GET("/health", func(c *gin.Context) {
		checks := gin.H{"postgres": "ok", "redis": "ok"}
		status := http.StatusOK
		pingCtx, pingCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer pingCancel()
		if err := db.PingContext(pingCtx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redis.Healthy(c.Request.Context(), 2*time.Second); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Population projection fed from our own event stream
	go func() {
		subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    "person-service-group",
			Consumer: cfg.ConsumerName,
			Stream:   events.PersonEventsStream,
			Handler:  commandSvc.HandlePersonEvent,
			Logger:   logger,
		})
		if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("subscriber stopped", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("person service starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
