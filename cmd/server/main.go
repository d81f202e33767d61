package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheerasakPing/thai-video-downloader/internal/api"
	"github.com/TheerasakPing/thai-video-downloader/internal/config"
	"github.com/TheerasakPing/thai-video-downloader/internal/download"
	"github.com/TheerasakPing/thai-video-downloader/internal/history"
	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/mux"
	"github.com/TheerasakPing/thai-video-downloader/internal/queue"
	"github.com/TheerasakPing/thai-video-downloader/internal/resolver"
)

func main() {
	// 1. Parse command-line arguments
	listenAddr := flag.String("l", "", "HTTP listen address (overrides config)")
	logLevel := flag.String("L", "", "Log level (error, warn, info, debug; overrides config)")
	configFile := flag.String("c", "", "Path to the config file")
	flag.Parse()

	// 2. Load configuration
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			logger.NewLogger("error").Errorf("Failed to load configuration: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// 3. Initialize logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Infof("Starting video download service...")
	log.Infof("Log level set to: %s", cfg.LogLevel)
	log.Infof("Download directory: %s", cfg.DownloadDir)

	// 4. Initialize services and managers
	res := resolver.New(
		resolver.NewChromeFactory(cfg.Headless, cfg.UserAgent),
		nil,
		log,
	)
	res.ObservationWindow = cfg.ResolveTimeout.Std()
	res.QuietPeriod = cfg.QuietPeriod.Std()

	engine := download.NewEngine(cfg, mux.New(log), log)
	store := history.NewFileStore(cfg.HistoryPath, cfg.HistoryLimit, log)
	manager := queue.NewManager(engine, store, log, cfg.MaxConcurrent, cfg.EventInterval.Std())
	manager.Start()

	// 5. Set up API router with dependencies
	router := api.New(res, manager, store, cfg.DownloadDir, log)

	// 6. Set up and run the HTTP server with graceful shutdown
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Infof("Server starting on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", cfg.ListenAddr, err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Infof("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Running downloads pause and keep their partial files for the next run.
	manager.Stop()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
		os.Exit(1)
	}

	log.Infof("Server exited gracefully")
}
