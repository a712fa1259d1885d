// Package main provides the main entry point for the follow-up engine
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

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/zapcrm/followup-engine/app/handlers"
	"github.com/zapcrm/followup-engine/app/router"
	"github.com/zapcrm/followup-engine/app/scheduler"
	"github.com/zapcrm/followup-engine/app/services"
	businessflow "github.com/zapcrm/followup-engine/business_flow"
	"github.com/zapcrm/followup-engine/config"
	"github.com/zapcrm/followup-engine/repository"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.Config
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting followup engine...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Metrics.Enabled {
		stopMetrics := startMetricsServer(cfg.Metrics)
		app.stopFuncs = append(app.stopFuncs, stopMetrics)
	}

	go func() {
		if err := app.server.Listen(cfg.Server.Address()); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the redis client and verifies connectivity.
// Returns nil when caching is disabled; the scheduler then runs without the
// distributed monitor lock.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.Addr, cfg.DB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings
// redis to detect connectivity issues. The returned cancel function stops it.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// startMetricsServer serves the prometheus exposition endpoint on its own port
func startMetricsServer(cfg config.MetricsConfig) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	go func() {
		log.Printf("Metrics server listening on :%d%s", cfg.Port, cfg.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Metrics server shutdown failed: %v", err)
		}
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.Config) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	configRepo := repository.NewFollowupConfigRepository(db)
	preRepo := repository.NewPreFollowupRepository(db)
	execRepo := repository.NewFollowupExecutionRepository(db)
	historyRepo := repository.NewFollowupHistoryRepository(db)
	convRepo := repository.NewConversationRepository(db)

	// Initialize services
	var generator businessflow.Generator
	if cfg.Generator.URL != "" {
		generator = services.NewGeneratorService(services.GeneratorConfig{
			URL:     cfg.Generator.URL,
			APIKey:  cfg.Generator.APIKey,
			Timeout: cfg.Generator.Timeout,
		})
	}
	dispatcher := services.NewTransportResolver(cfg.Transport.Timeout)

	composer := businessflow.NewComposer(generator, log.Default())

	// Initialize flows
	monitorFlow := businessflow.NewMonitorFlow(
		configRepo,
		preRepo,
		execRepo,
		convRepo,
		historyRepo,
		db,
		log.Default(),
	)

	fireFlow := businessflow.NewFireFlow(
		execRepo,
		configRepo,
		convRepo,
		historyRepo,
		composer,
		dispatcher,
		db,
		log.Default(),
	)

	historyFlow := businessflow.NewHistoryFlow(historyRepo)

	// Initialize handlers and router
	followupHandler := handlers.NewFollowupHandler(monitorFlow, fireFlow, historyFlow)
	appRouter := router.NewFiberRouter(followupHandler, db, rc)

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewFollowupScheduler(
			monitorFlow,
			fireFlow,
			rc,
			cfg.Scheduler.MonitorInterval,
			cfg.Scheduler.FireInterval,
			cfg.Scheduler.FireBatchLimit,
		)
		stopScheduler := sched.Start(context.Background())
		stopFuncs = append(stopFuncs, stopScheduler)
		sched.Logger().Printf("scheduler started: monitor every %s, fire every %s (batch %d)",
			cfg.Scheduler.MonitorInterval, cfg.Scheduler.FireInterval, cfg.Scheduler.FireBatchLimit)
	}

	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
