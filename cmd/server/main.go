package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deepticker/internal/config"
	"deepticker/internal/pipeline"
	"deepticker/internal/portfolio"
	"deepticker/internal/secrets"
	"deepticker/pkg/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx, os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.New("info", "text").Fatalf("config: %v", err)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	pl, err := pipeline.Build(cfg, secrets.Env{}, log)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			log.Warnf("close cache: %v", err)
		}
	}()

	pf := portfolio.NewStore(pl.Resolver, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newServer(pl.Resolver, pf, cfg.Server.RequestTimeout(), log).routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	// graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
