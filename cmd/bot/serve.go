package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"study_delivery_bot/internal/infra/logger"
	"study_delivery_bot/internal/infra/scheduler"
	"study_delivery_bot/internal/infra/telegram"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the delivery engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	bot, err := rt.bot(true)
	if err != nil {
		return err
	}
	eng, err := rt.engine(ctx, bot)
	if err != nil {
		return err
	}

	handlerLogger := logger.Component("telegram")
	telegram.RegisterBotCommands(ctx, bot, eng.subscribers, eng.admin, handlerLogger)
	telegram.RegisterAdminHandlers(ctx, bot, eng.admin, rt.cfg.AdminTelegramID, handlerLogger)
	telegram.RegisterAckHandlers(ctx, bot, eng.subscribers, handlerLogger)
	rt.log.Info("Telegram handlers registered")

	engineScheduler := scheduler.NewEngineScheduler(eng.runner, logger.Component("scheduler"), rt.cfg.TickSpec, rt.cfg.TickTimeout)
	if err := engineScheduler.Start(); err != nil {
		return err
	}

	go bot.Start()
	rt.log.Info("Application setup complete. Bot and scheduler are running")

	<-ctx.Done()

	rt.log.Info("Shutting down application...")
	bot.Stop()
	engineScheduler.Stop()
	rt.log.Info("Application shut down gracefully")
	return nil
}
