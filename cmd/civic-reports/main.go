package main

import (
	"context"
	"os/signal"
	"syscall"

	"civic_reports/internal/app"
	"civic_reports/internal/config"
	"civic_reports/internal/logger"
)

func main() {
	log := logger.New()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := application.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
}
