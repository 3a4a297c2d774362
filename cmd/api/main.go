package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/property-search/app/bootstrap"
	"github.com/property-search/app/config"
	"github.com/property-search/app/controllers"
	"github.com/property-search/app/services"
	"github.com/property-search/internal/observability"
	"github.com/property-search/routes"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// 2. Khởi tạo logger
	logger, err := observability.NewLogger(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting Property Search Service", zap.String("env", cfg.App.Env))

	// 3. Nối dây postal lookup, matcher, registry và job store
	metrics := observability.NewMetrics()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.New(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close(context.Background())

	if components.MemoryStore != nil {
		components.MemoryStore.StartCleanupWorker(ctx, cfg.Store.CleanupInterval)
	}

	// 4. Bulk search engine
	engine := components.NewEngine()
	exportService := services.NewExportService(components.Store, logger)

	// 5. Controllers và routes
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.SetupAllRoutes(router, routes.Controllers{
		Address:    controllers.NewAddressController(components.Matcher, logger),
		BulkSearch: controllers.NewBulkSearchController(engine, exportService, logger),
		Admin:      controllers.NewAdminController(components.NewAdminService(), logger),
		Health:     controllers.NewHealthController(version, components.HealthChecks()),
	}, metrics, logger)

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.App.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("Bulk search engine shutdown error", zap.Error(err))
	}

	logger.Info("Server exited")
}
