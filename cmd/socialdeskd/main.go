package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"socialdesk/internal/di"
)

func main() {
	log.Println("Starting socialdesk daemon...")

	app, cleanup, err := di.InitializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer cleanup()

	go func() {
		if err := app.Bridge.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Bridge failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Bridge.Shutdown(ctx); err != nil {
		log.Printf("Bridge shutdown: %v", err)
	}
	log.Println("Stopped")
}
