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

	"nmkrmint/internal/config"
	"nmkrmint/internal/idempotency"
	"nmkrmint/internal/nmkr"
	"nmkrmint/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	store, err := idempotency.Open(ctx, cfg.Service.PostgresDSN, cfg.Service.IdempotencyStorePath)
	if err != nil {
		log.Fatalf("idempotency store error: %v", err)
	}
	if pg, ok := store.(*idempotency.PostgresStore); ok {
		defer pg.Close()
	}

	var client nmkr.Client = nmkr.FakeClient{PayBaseURL: cfg.NMKR.FakePayURL}
	if cfg.NMKR.APIKey != "" {
		httpClient, err := nmkr.NewHTTPClient(nmkr.HTTPClientConfig{
			BaseURL: cfg.NMKR.BaseURL,
			APIKey:  cfg.NMKR.APIKey,
			Timeout: cfg.NMKR.Timeout,
		})
		if err != nil {
			log.Fatalf("nmkr client error: %v", err)
		}
		client = httpClient
	} else {
		log.Printf("[main] NMKR_API_KEY not set, using fake NMKR client")
	}

	apiServer := server.NewServer(cfg, client, store)

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	// In-flight runs are bounded by the NMKR timeout on each of their three calls.
	shutdownCtx, cancel := context.WithTimeout(ctx, 3*cfg.NMKR.Timeout+5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
