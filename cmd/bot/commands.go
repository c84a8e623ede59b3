package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"study_delivery_bot/internal/app"
	"study_delivery_bot/internal/infra/catalog"
	"study_delivery_bot/internal/infra/logger"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s).\n", rt.cfg.DatabaseDriver)
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.yaml>",
		Short: "Load content sources and schedules from a YAML catalog",
		Long: `Creates the sources, items and schedules listed in the catalog.
Running it again only adds new items and schedules that do not exist yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			admin := app.NewAdminService(rt.store, nil, rt.cfg.AdminTelegramID, rt.cfg.MetricsWindow, rt.cfg.DefaultTimezone)
			res, err := catalog.Apply(ctx, admin, rt.cfg.AdminTelegramID, c, logger.Component("catalog"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sources created: %d, items added: %d, schedules created: %d, schedules skipped: %d\n",
				res.SourcesCreated, res.ItemsAdded, res.SchedulesCreated, res.SchedulesSkipped)
			return nil
		},
	}
}

func newTickCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run a single engine pass and exit",
		Long:  "Useful when deliveries are driven by an external scheduler such as a system cron.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, eng *engine) error {
				summary, err := eng.runner.Tick(ctx)
				if err != nil {
					return err
				}
				if summary.Skipped {
					fmt.Fprintln(cmd.OutOrStdout(), "Another engine run holds the lock, nothing done.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Checked %d schedules: %d activated, %d fired, %d completed, %d errors. Deliveries: %d sent, %d failed.\n",
					summary.Checked, summary.Activated, summary.Fired, summary.Completed, summary.Errors,
					summary.Deliveries.Sent, summary.Deliveries.Failed)
				return nil
			})
		},
	}
}

func newTriggerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <schedule_id>",
		Short: "Deliver a schedule to every active subscriber now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("schedule id must be a number: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, eng *engine) error {
				summary, err := eng.runner.TriggerNow(ctx, id)
				if err != nil {
					return err
				}
				logger.Component("main").WithFields(logrus.Fields{
					"schedule_id": id,
					"sent":        summary.Sent,
					"failed":      summary.Failed,
				}).Info("Schedule triggered")
				fmt.Fprintf(cmd.OutOrStdout(), "Recipients: %d, sent: %d, failed: %d, already delivered: %d\n",
					summary.Recipients, summary.Sent, summary.Failed, summary.AlreadyDelivered)
				return nil
			})
		},
	}
}

func withEngine(ctx context.Context, fn func(ctx context.Context, eng *engine) error) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	bot, err := rt.bot(false)
	if err != nil {
		return err
	}
	eng, err := rt.engine(ctx, bot)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, rt.cfg.TickTimeout)
	defer cancel()
	return fn(ctx, eng)
}
