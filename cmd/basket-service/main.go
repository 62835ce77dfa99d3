package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/Abdurahmanit/GroupProject/basket-service/internal/app"
	"github.com/Abdurahmanit/GroupProject/basket-service/internal/app/config"
)

func main() {
	cfg := config.MustLoad()

	// Interrupting during bootstrap aborts the connect retries.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	application, err := app.New(ctx, cfg)
	stop()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	application.Run()
}
