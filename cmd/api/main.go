package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/knowbase-io/knowbase/internal/app"
	"github.com/knowbase-io/knowbase/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	go a.Start(ctx)

	go func() {
		a.Log.Info("server listening", zap.String("port", cfg.Port))
		if err := a.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	a.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Log.Error("graceful shutdown failed", zap.Error(err))
	}
}
