package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/lib/pq" // PostgreSQL driver

	"opsapi/internal/config"
	"opsapi/internal/constants"
	"opsapi/internal/customers"
	"opsapi/internal/dependency"
	"opsapi/internal/events"
	"opsapi/internal/logger"
	"opsapi/internal/notes"
	"opsapi/internal/outbox"
	"opsapi/internal/tasks"
	"opsapi/pkg/bootstrap"
	"opsapi/pkg/health"
	"opsapi/pkg/metrics"
	"opsapi/pkg/middleware"
	"opsapi/pkg/migrations"
	"opsapi/pkg/ratelimit"
	"opsapi/pkg/tracing"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, "ops-api")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.config.Database.RunMigrations {
		if err := migrations.RunPostgres(db, a.config.Database.MigrationsDir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("ops-api"))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.CorrelationIDMiddleware())
	router.Use(middleware.RequestLogger(a.logger))

	if a.config.API.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.API.RateLimit.RPS,
			Burst:           a.config.API.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.API.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.API.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "Rate limiting enabled",
			"rps", rateLimitConfig.RPS,
			"burst", rateLimitConfig.Burst,
		)
	}

	outboxRepo := outbox.NewRepository()
	publisher := events.NewPublisher(outboxRepo, a.logger)
	depClient := dependency.NewClient(a.config.Dependency, a.logger)

	customerRepo := customers.NewRepository(a.db)
	taskRepo := tasks.NewRepository(a.db)
	noteRepo := notes.NewRepository(a.db)

	customerService := customers.NewService(a.db, customerRepo, publisher, depClient, a.logger)
	taskService := tasks.NewService(a.db, taskRepo, customerRepo, noteRepo, a.logger)
	noteService := notes.NewService(a.db, noteRepo, taskRepo, a.logger)

	customers.NewHandler(customerService, a.logger).RegisterRoutes(router)
	tasks.NewHandler(taskService, a.logger).RegisterRoutes(router)
	notes.NewHandler(noteService, a.logger).RegisterRoutes(router)

	if a.config.API.StubEnabled {
		router.GET("/_stub/dependency", dependency.StubHandler(a.logger))
		a.logger.InfowCtx(context.Background(), "Dependency stub enabled")
	}

	metrics.RegisterAPIMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))

	router.GET("/healthz", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Server.Port),
		Handler: a.router,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(a.db)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
