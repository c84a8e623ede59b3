package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"study_delivery_bot/internal/app"
	idb "study_delivery_bot/internal/infra/database"
)

// RegisterAckHandlers handles the Done / Not done buttons under a daily digest.
func RegisterAckHandlers(ctx context.Context, b *telebot.Bot, subscriberService *app.SubscriberService, baseLogger *logrus.Entry) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := c.Callback().Data
		logCtx := baseLogger.WithFields(logrus.Fields{
			"handler":   "ack_callback",
			"sender_id": c.Sender().ID,
			"data":      data,
		})

		ack, day, err := parseAckData(data)
		if err != nil {
			c.Bot().OnError(fmt.Errorf("unhandled callback data: %w", err), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
		}

		result, err := subscriberService.Acknowledge(ctx, c.Chat().ID, day, ack)
		switch {
		case err == nil:
		case errors.Is(err, app.ErrConflictingAcknowledgment):
			return c.Respond(&telebot.CallbackResponse{Text: fmt.Sprintf("Day %d was already marked differently.", day)})
		case errors.Is(err, app.ErrNoPendingDelivery), errors.Is(err, idb.ErrSubscriberNotFound):
			return c.Respond(&telebot.CallbackResponse{Text: "This day can no longer be marked."})
		default:
			c.Bot().OnError(fmt.Errorf("error processing acknowledgment for day %d: %w", day, err), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong, please try again."})
		}

		if !result.Changed {
			return c.Respond(&telebot.CallbackResponse{Text: "Already recorded."})
		}

		logCtx.WithFields(logrus.Fields{"day": day, "ack": ack, "streak": result.Streak}).Info("Acknowledgment recorded")
		if msg := c.Callback().Message; msg != nil {
			if _, err := c.Bot().EditReplyMarkup(msg, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to remove acknowledgment buttons")
			}
		}
		if err := c.Send(app.RenderAckConfirmation(day, ack, result.Streak)); err != nil {
			logCtx.WithError(err).Warn("Failed to send acknowledgment confirmation")
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Saved!"})
	})
}
