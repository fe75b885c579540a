package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/arrowlimo/arrow-limo-sub003/internal/api"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/config"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/logging"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/storage"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		port       = flag.Int("port", 0, "Listen port (0 = use config)")
	)
	flag.Parse()

	var cfg *config.Config
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configFile, err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrEnv()
	}
	if *port > 0 {
		cfg.API.Port = *port
	}

	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "api")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("Failed to open target store", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	server := api.NewServer(store, logger)
	router := server.Router(cfg.API)

	addr := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("Review API listening", "addr", addr)
	if err := router.Run(addr); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
