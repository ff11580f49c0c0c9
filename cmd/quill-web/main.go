package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/matthewjhunter/quill"
	"github.com/matthewjhunter/quill/internal/auth"
	"github.com/matthewjhunter/quill/internal/config"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path")
	addr := flag.String("addr", "", "listen address (default from config)")
	flag.Parse()

	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "quill-web: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, *addr, logger); err != nil {
		logger.Fatal("quill-web failed", zap.Error(err))
	}
}

func run(configPath, addr string, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Web.Addr
	}

	issuer, err := auth.NewIssuer(cfg.Web.JWTSecret, time.Duration(cfg.Web.TokenTTLHour)*time.Hour)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := quill.NewEngine(ctx, quill.EngineConfig{Config: cfg, Logger: logger, ReadOnly: true})
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(engine, issuer, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
