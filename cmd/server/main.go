package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/papermes/internal/api"
	"github.com/dvloznov/papermes/internal/api/handlers"
	"github.com/dvloznov/papermes/internal/app"
	"github.com/dvloznov/papermes/internal/config"
	"github.com/dvloznov/papermes/internal/jobs"
	"github.com/dvloznov/papermes/internal/jobs/inmemory"
	"github.com/dvloznov/papermes/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configFile = flag.String("config", "", "Path to config file (default: search for config.yml)")
		envFile    = flag.String("env-file", "", "Path to .env file (default: ./.env if present)")
	)
	flag.Parse()

	settings, err := config.Load(config.Options{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.NewFromConfig(settings.App.LogLevel, settings.App.LogFormat)

	if err := settings.RequireLedger(); err != nil {
		log.Fatal().Err(err).Msg("Ledger is not configured")
	}

	ctx := context.Background()

	a, err := app.New(settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	analyzer, err := a.Analyzer(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt analyzer")
	}

	var uploader handlers.Uploader
	if settings.Storage.Bucket != "" {
		uploader = a.Images
	} else {
		log.Warn().Msg("No storage bucket configured - uploaded receipts are kept in memory until analyzed")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(settings.Server.QueueSize, settings.Server.Workers, jobStore)

	// Start workers in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := jobs.NewAnalyzeReceiptHandler(analyzer, a.Tools, log)
	log.Info().Int("workers", settings.Server.Workers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	handler := api.NewRouter(api.Options{
		Surface:   a.Tools,
		Publisher: jobQueue,
		Store:     jobStore,
		Uploader:  uploader,
		AuthToken: settings.Server.AuthToken,
		RateLimit: settings.Server.RateLimit,
		RateBurst: settings.Server.RateBurst,
		Logger:    log,
	})

	// Create HTTP server. Analysis runs in the workers, so requests stay short.
	server := &http.Server{
		Addr:         settings.Addr(),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting papermes server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
