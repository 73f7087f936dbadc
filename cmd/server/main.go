package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Sec-Link/SIEM/pkg/api"
	"github.com/Sec-Link/SIEM/pkg/cache"
	"github.com/Sec-Link/SIEM/pkg/config"
	"github.com/Sec-Link/SIEM/pkg/elastic"
	"github.com/Sec-Link/SIEM/pkg/services"
)

// @title Sec-Link SIEM Alert Dashboard API
// @version 1.0
// @description Multi-tenant security alert retrieval and dashboard backend
// @BasePath /api

func main() {
	// Configure Log Level from Environment Variable
	logLevelStr := os.Getenv("LOG_LEVEL")
	switch strings.ToLower(logLevelStr) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.Infof("Log level set to: %s", logrus.GetLevel().String())

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// The cache is a soft dependency: when it is unreachable the server still
	// serves live and static alerts, it just cannot warm or read the cache.
	var store services.Store
	if cfg.Cache.Address != "" {
		cacheClient, err := cache.NewClient(&cfg.Cache)
		if err != nil {
			logrus.Warnf("Alert cache unavailable, continuing without it: %v", err)
		} else {
			defer cacheClient.Close()
			cacheStore, err := cache.NewStore(ctx, cacheClient)
			if err != nil {
				logrus.Warnf("Failed to set up alert cache stream, continuing without cache: %v", err)
			} else {
				store = cacheStore
			}
		}
	} else {
		logrus.Warnf("No cache address configured, running without the alert cache")
	}

	sources := config.NewSourceCatalog(cfg.Sources)
	fetcher := elastic.NewFetcher(cfg.Fetch)
	classifier := services.NewSeverityClassifier(cfg.Severity)
	static := services.LoadStaticCatalog()

	alertService := services.NewAlertService(store, fetcher, sources, static)
	aggregator := services.NewAggregationEngine(store, classifier)
	syncTask := services.NewSyncTask(fetcher, store, sources, cfg.Sync.BatchSize)

	// Set up the Echo server
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if cfg.Server.AllowedOrigins != "" && cfg.Server.AllowedOrigins != "*" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: strings.Split(cfg.Server.AllowedOrigins, ","),
		}))
	} else {
		e.Use(middleware.CORS())
	}

	apiHandler := api.NewAPIHandler(alertService, aggregator, syncTask, sources, fetcher)
	apiHandler.SetupRoutes(e)

	// Swagger documentation
	e.GET("/swagger/*", echo.WrapHandler(httpSwagger.Handler()))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Optional background cache warming across all enabled tenants.
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	if cfg.Sync.IntervalSeconds > 0 {
		go runSyncLoop(schedulerCtx, syncTask, time.Duration(cfg.Sync.IntervalSeconds)*time.Second)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Starting server on port %s", port)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	stopScheduler()

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	logrus.Info("Server shutdown complete")
}

// runSyncLoop drives the batch sync on a fixed interval until the context is
// cancelled. One run happens immediately so a fresh deployment warms its
// cache without waiting a full interval.
func runSyncLoop(ctx context.Context, syncTask *services.SyncTask, interval time.Duration) {
	logrus.Infof("Background sync enabled, interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce := func() {
		if _, err := syncTask.Sync(ctx, "", 0); err != nil {
			logrus.Errorf("Background sync failed: %v", err)
		}
	}
	runOnce()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Background sync stopped")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
