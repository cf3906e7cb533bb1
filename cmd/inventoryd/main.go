// inventoryd is the standalone inventory lookup service the support agent's
// stock tool calls over HTTP. It serves read-only stock data from a JSON file.
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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/freshcart/support-agent/internal/core"
	"github.com/freshcart/support-agent/internal/inventory"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

type config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Addr        string `envconfig:"INVENTORYD_ADDR" default:":8001"`
	StockPath   string `envconfig:"STOCK_PATH" default:"data/stock.json"`
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	handler, err := inventory.NewHandlerFromFile(cfg.StockPath)
	if err != nil {
		log.Fatalf("Failed to load stock database: %v", err)
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	handler.Routes(router)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", cfg.Addr).Msg("inventory service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		logx.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Fatalf("Shutdown error: %v", err)
		}
	}
}
