package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewjhunter/quill/internal/scheduler"
	"github.com/matthewjhunter/quill/internal/telegram"
)

func botCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Long: `Run the Telegram bot with long polling, plus a background job that expires
idle conversations. Handles SIGINT/SIGTERM for graceful shutdown: in-flight
messages are answered before the process exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := openEngine(ctx, false)
			if err != nil {
				return err
			}
			defer engine.Close()

			api, err := telegram.Connect(cfg.Telegram.Token, cfg.Telegram.Debug)
			if err != nil {
				return err
			}
			logger.Info("connected to telegram", zap.String("bot", api.Self.UserName))

			bot := telegram.New(api, engine.Controller(), nil, telegram.Options{
				PollTimeout:    cfg.Telegram.PollTimeout,
				MaxUploadBytes: cfg.Telegram.MaxUploadBytes,
			}, logger.Named("telegram"))

			sched := scheduler.New(time.Minute, logger.Named("scheduler"))
			if err := sched.AddJob("session-sweep", cfg.Sessions.SweepSchedule, func(ctx context.Context) error {
				_, err := engine.ExpireSessions(ctx)
				return err
			}); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return bot.Run(gctx) })
			g.Go(func() error { return sched.Run(gctx) })

			err = g.Wait()
			logger.Info("bot stopped")
			return err
		},
	}
}
