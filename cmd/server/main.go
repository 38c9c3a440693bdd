package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-scan/internal/config"
	"github.com/garyjia/receipt-scan/internal/container"
	httpserver "github.com/garyjia/receipt-scan/internal/interfaces/http"
	"github.com/garyjia/receipt-scan/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file (empty for env only)")
	flag.Parse()

	// .env is optional; real environment variables win
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "receipt-scan",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting receipt scan service",
		zap.String("inference_provider", cfg.Inference.Provider),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	services := c.Services()
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, httpserver.Services{
		Jobs:     services.Jobs,
		Receipts: services.Receipts,
		Rules:    services.Rules,
		Exports:  services.Exports,
		Health: func(ctx context.Context) (bool, interface{}) {
			h := c.Health(ctx)
			return h.Overall, h.Components
		},
	}, c.BlobStore(), c.LoggerAdapter())

	serverErr := server.Start(ctx)
	if serverErr != nil {
		logger.Error("HTTP server stopped with error", zap.Error(serverErr))
	}

	logger.Info("Shutting down")
	if err := c.Close(); err != nil {
		logger.Error("Container shutdown error", zap.Error(err))
	}

	if serverErr != nil {
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}
