package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/dittochat/internal/logger"
	chatServer "github.com/marmos91/dittochat/internal/server"
	"github.com/marmos91/dittochat/internal/store"
	"github.com/marmos91/dittochat/pkg/config"
	"github.com/marmos91/dittochat/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittochat/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.SetLevel(cfg.Logging.Level)

	fmt.Println("dittochat - chat server")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailboxes, err := config.CreateMailboxStore(&cfg.Store)
	if err != nil {
		log.Fatalf("Failed to create mailbox store: %v", err)
	}
	defer mailboxes.Close()
	logger.Info("Mailbox store: %s", cfg.Store.Type)

	// Session state never survives a restart: whatever status the store
	// carries is stale, so every user starts offline.
	if err := store.ResetSessions(ctx, mailboxes); err != nil {
		log.Fatalf("Failed to reset session state: %v", err)
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port})
		metricsServer.Start()
		logger.Info("Metrics endpoint on port %d", cfg.Metrics.Port)
	}

	srv := chatServer.New(chatServer.Options{
		ListenAddr:     cfg.Server.ListenAddr,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxConnections: cfg.Server.MaxConnections,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
	}, mailboxes, metrics.NewChatMetrics())

	logger.Info("Server configuration:")
	logger.Info("  Listen address: %s", cfg.Server.ListenAddr)
	if cfg.Server.MaxConnections > 0 {
		logger.Info("  Max connections: %d", cfg.Server.MaxConnections)
	} else {
		logger.Info("  Max connections: unlimited")
	}
	logger.Info("  Read timeout: %v", cfg.Server.ReadTimeout)
	logger.Info("  Write timeout: %v", cfg.Server.WriteTimeout)
	logger.Info("  Shutdown timeout: %v", cfg.Server.ShutdownTimeout)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running on %s. Press Ctrl+C to stop.", cfg.Server.ListenAddr)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		select {
		case err := <-serverDone:
			if err != nil {
				logger.Error("Server shutdown error: %v", err)
				os.Exit(1)
			}
			logger.Info("Server stopped gracefully")
		case <-time.After(cfg.Server.ShutdownTimeout):
			logger.Error("Shutdown timed out after %v", cfg.Server.ShutdownTimeout)
			os.Exit(1)
		}

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
	}
}
