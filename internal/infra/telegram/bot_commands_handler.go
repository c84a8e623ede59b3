package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"study_delivery_bot/internal/app"
	idb "study_delivery_bot/internal/infra/database"
)

const subscriberHelp = "I send your study plan every day: the links, files and notes scheduled for that day.\n\n" +
	"Press ✅ Done or ❌ Not done under each day to keep your streak.\n\n" +
	"/progress - show your streak and completion\n" +
	"/stop - stop daily deliveries\n" +
	"/start - subscribe again\n" +
	"/help - show this message"

// RegisterBotCommands registers the commands available to every chat.
func RegisterBotCommands(ctx context.Context, b *telebot.Bot, subscriberService *app.SubscriberService, adminService *app.AdminService, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "subscriber")

	b.Handle("/start", func(c telebot.Context) error {
		sender := c.Sender()
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", sender.ID)
		logCtx.Info("Processing /start command")

		sub, created, err := subscriberService.Register(ctx, c.Chat().ID, sender.FirstName, sender.Username)
		if err != nil {
			if errors.Is(err, app.ErrSubscriberInactive) {
				logCtx.Warn("Blocked subscriber tried to subscribe")
				return c.Send("Your subscription has been disabled. Please contact the administrator.")
			}
			logCtx.WithError(err).Error("Failed to register subscriber")
			return c.Send("Something went wrong while subscribing. Please try again later.")
		}

		logCtx = logCtx.WithField("subscriber_id", sub.ID)
		greeting := fmt.Sprintf("Welcome back, %s! Daily deliveries are on again.", displayName(sender))
		if created {
			logCtx.Info("Subscriber registered")
			greeting = fmt.Sprintf("Hi, %s! You are subscribed to the daily study plan.", displayName(sender))
		} else {
			logCtx.Info("Subscriber reactivated")
		}
		if adminService.IsAdmin(sender.ID) {
			greeting += "\nYou are the administrator, use /help for the admin commands."
		}
		return c.Send(greeting + "\n\n" + subscriberHelp)
	})

	b.Handle("/stop", func(c telebot.Context) error {
		logCtx := startHelpLogger.WithField("command", "/stop").WithField("sender_id", c.Sender().ID)
		logCtx.Info("Processing /stop command")

		if err := subscriberService.Unsubscribe(ctx, c.Chat().ID); err != nil {
			if errors.Is(err, idb.ErrSubscriberNotFound) {
				return c.Send("You are not subscribed. Send /start to subscribe.")
			}
			logCtx.WithError(err).Error("Failed to unsubscribe")
			return c.Send("Something went wrong. Please try again later.")
		}
		return c.Send("Daily deliveries stopped. Your progress is kept, send /start to continue.")
	})

	b.Handle("/progress", func(c telebot.Context) error {
		logCtx := startHelpLogger.WithField("command", "/progress").WithField("sender_id", c.Sender().ID)

		metrics, err := subscriberService.Progress(ctx, c.Chat().ID)
		if err != nil {
			if errors.Is(err, idb.ErrSubscriberNotFound) {
				return c.Send("You are not subscribed yet. Send /start to subscribe.")
			}
			logCtx.WithError(err).Error("Failed to compute progress")
			return c.Send("Could not load your progress. Please try again later.")
		}
		return c.Send(app.RenderMetrics(metrics))
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if adminService.IsAdmin(senderID) {
			return c.Send(subscriberHelp + "\n\n" + adminHelp)
		}
		return c.Send(subscriberHelp)
	})
}

func displayName(u *telebot.User) string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "there"
}
