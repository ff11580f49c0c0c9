// quill-mcp serves the quill engine as MCP tools over stdio, so an assistant
// can manage channels and write posts with the same database the Telegram
// bot uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/matthewjhunter/quill"
	"github.com/matthewjhunter/quill/internal/config"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path")
	userID := flag.Int64("user", 0, "default Telegram user id for tool calls")
	readOnly := flag.Bool("read-only", false, "do not configure the text generator")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "quill-mcp: load .env: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "quill-mcp: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := quill.NewEngine(ctx, quill.EngineConfig{Config: cfg, Logger: logger, ReadOnly: *readOnly})
	if err != nil {
		logger.Fatal("create quill engine", zap.Error(err))
	}
	defer engine.Close()

	if err := newServer(engine, *userID, logger).run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", zap.Error(err))
	}
}
