package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/routeflow/routeflow-api/internal/config"
	"github.com/routeflow/routeflow-api/internal/logger"
	"github.com/routeflow/routeflow-api/internal/server"
)

func main() {
	logger.Init(os.Getenv("STAGE"))
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("failed to load configuration", zap.Error(err))
	}

	srv, err := server.New(cfg)
	if err != nil {
		logger.Log.Fatal("failed to build server", zap.Error(err))
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("starting server",
			zap.String("addr", httpServer.Addr),
			zap.String("stage", cfg.Stage),
			zap.Bool("mock_provider", cfg.Flags.UseMockProvider),
			zap.Bool("mock_routing", cfg.Flags.UseMockRouting))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Log.Error("graceful shutdown failed", zap.Error(err))
	}
}
