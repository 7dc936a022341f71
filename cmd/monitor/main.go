// cmd/monitor/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fleet-monitor/internal/api"
	"fleet-monitor/internal/config"
	"fleet-monitor/internal/di"
	"fleet-monitor/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Logger.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.NewContainer(cfg)
	if err != nil {
		utils.Logger.Fatalf("Failed to build container: %v", err)
	}
	defer container.Shutdown()

	logger := container.Logger
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initial fleet snapshot; without it there is nothing to connect to.
	if err := container.Fleet.Refresh(ctx); err != nil {
		logger.Errorf("Initial fleet fetch failed, retrying on refresh interval: %v", err)
	}
	go container.Fleet.RefreshEvery(ctx, cfg.RefreshInterval)

	if err := container.Registry.ConnectAll(ctx); err != nil {
		logger.Errorf("Broker connection setup failed: %v", err)
	}

	server := api.NewServer(container.Handler)
	go func() {
		logger.Infof("Ops API listening on %s", cfg.OpsBindAddr)
		if err := server.Start(cfg.OpsBindAddr); err != nil {
			logger.Errorf("Ops API stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Errorf("Ops API shutdown error: %v", err)
	}
	logger.Info("Stopped")
}
