package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/riftrewind/rewindx/app/worker"
)

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := worker.Initialize(ctx)

	app.Start(ctx)
}
