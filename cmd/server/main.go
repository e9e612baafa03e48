package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yegors/ccrp/internal/api"
	"github.com/yegors/ccrp/internal/config"
	"github.com/yegors/ccrp/internal/metrics"
	"github.com/yegors/ccrp/internal/mission"
	"github.com/yegors/ccrp/internal/storage/sqlite"
	"github.com/yegors/ccrp/internal/weather"
	"github.com/yegors/ccrp/internal/websocket"
	"github.com/yegors/ccrp/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting CCRP server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.String("drag_model", cfg.Physics.DragModel),
		logger.String("density_source", cfg.Atmosphere.DensitySource),
	)

	// Solution history
	var store mission.Store
	if cfg.Storage.Enabled {
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Error("Failed to create storage directory", logger.String("dir", dir), logger.Error(err))
				os.Exit(1)
			}
		}
		solutionStorage, err := sqlite.NewSolutionStorage(cfg.Storage.SQLitePath, log)
		if err != nil {
			log.Error("Failed to open solution storage", logger.Error(err))
			os.Exit(1)
		}
		defer solutionStorage.Close()
		store = solutionStorage
	} else {
		log.Info("Solution history disabled in configuration")
	}

	collector, err := metrics.NewSolveCollector(nil)
	if err != nil {
		log.Error("Failed to register metrics", logger.Error(err))
		os.Exit(1)
	}

	// Live solution feed
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	missionService, err := mission.NewService(cfg, store, collector, wsServer, log)
	if err != nil {
		log.Error("Failed to create mission service", logger.Error(err))
		os.Exit(1)
	}
	missionService.SetWeather(weather.NewService(cfg.Weather, log))
	wsServer.SetMessageHandler(missionService)

	// Create API router
	handler := api.NewHandler(missionService, cfg.Storage.MaxHistory, log)
	router := api.NewRouter(handler, wsServer.HandleConnection, collector.Handler(), log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-serverErr:
		log.Error("HTTP server error", logger.String("addr", addr), logger.Error(err))
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.String("addr", addr), logger.Error(err))
	}

	log.Info("Stopping WebSocket server...")
	wsServer.Stop()

	log.Info("Server fully stopped")
}
