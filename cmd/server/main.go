package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/Adda-Baaj/broker-scraper/internal/api"
	"github.com/Adda-Baaj/broker-scraper/internal/config"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
	"github.com/Adda-Baaj/broker-scraper/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := pflag.String("config", "", "path to a config file (yaml, json or toml)")
	pflag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(pipeline.New(cfg, nil, log), log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.InfoObj("starting api server", "server_start", map[string]any{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.ErrorObj("server exited", "server_error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.ErrorObj("graceful shutdown failed", "server_error", map[string]any{"error": err.Error()})
	}
	log.InfoObj("server stopped", "server_stop", map[string]any{})
}
