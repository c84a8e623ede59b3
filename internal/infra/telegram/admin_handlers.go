package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"study_delivery_bot/internal/app"
	"study_delivery_bot/internal/domain/content"
	idb "study_delivery_bot/internal/infra/database"
)

const adminHelp = "Admin commands:\n\n" +
	"/source_add <name> [title] - create a content source\n" +
	"/item_add <source> <video|file|text> <ref> [title] - append an item\n" +
	"/item_remove <item_id> - remove an item\n" +
	"/source_delete <name> - delete a source not used by a live schedule\n" +
	"/sources - list sources\n" +
	"/schedule_add name=... sources=a,b cycle=c,d frequency=every|weekdays|alternate days=mon,wed time=HH:MM start=YYYY-MM-DD [end=YYYY-MM-DD] [tz=Area/City] [mode=sequential|all_at_once]\n" +
	"/schedule_edit <id> name=... - replace a schedule that has not delivered yet, same arguments as /schedule_add\n" +
	"/schedules - list schedules\n" +
	"/history <id> - recent deliveries of a schedule\n" +
	"/pause <id>, /resume <id> - pause or resume a schedule\n" +
	"/trigger <id> - deliver a schedule now\n" +
	"/subscribers - list subscribers\n" +
	"/metrics <chat_id> - progress of a subscriber\n" +
	"/reset <chat_id> - erase a subscriber's history\n" +
	"/block <chat_id>, /unblock <chat_id> - stop or allow deliveries"

// historyLimit caps the records shown by /history.
const historyLimit = 20

const unauthorizedMessage = "Error: you are not allowed to run this command."

type adminFunc func(c telebot.Context, log *logrus.Entry) error

// RegisterAdminHandlers registers handlers for admin commands.
// Every handler checks the sender against the configured admin Telegram ID.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, adminTelegramID int64, baseLogger *logrus.Entry) {
	admin := func(command string, fn adminFunc) {
		b.Handle(command, func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")

			if c.Sender().ID != adminTelegramID {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(unauthorizedMessage)
			}
			return fn(c, handlerLogger)
		})
	}

	admin("/source_add", func(c telebot.Context, log *logrus.Entry) error {
		args := c.Args()
		if len(args) < 1 {
			return c.Send("Usage: /source_add <name> [title]")
		}
		src, err := adminService.CreateSource(ctx, c.Sender().ID, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return replyError(c, log, err, "creating the source")
		}
		log.WithField("source_id", src.ID).Info("Source created")
		return c.Send(fmt.Sprintf("Source %s (ID: %d) created.", src.Name, src.ID))
	})

	admin("/item_add", func(c telebot.Context, log *logrus.Entry) error {
		args := c.Args()
		if len(args) < 3 {
			return c.Send("Usage: /item_add <source> <video|file|text> <ref> [title]")
		}
		kind := content.Kind(strings.ToLower(args[1]))
		ref, title := args[2], strings.Join(args[3:], " ")
		if kind == content.KindText {
			ref, title = strings.Join(args[2:], " "), ""
		}
		item, err := adminService.AddItem(ctx, c.Sender().ID, args[0], kind, ref, title)
		if err != nil {
			return replyError(c, log, err, "adding the item")
		}
		log.WithFields(logrus.Fields{"item_id": item.ID, "source_id": item.SourceID}).Info("Item added")
		return c.Send(fmt.Sprintf("Item %d added at position %d.", item.ID, item.Position+1))
	})

	admin("/item_remove", func(c telebot.Context, log *logrus.Entry) error {
		id, ok := singleID(c)
		if !ok {
			return c.Send("Usage: /item_remove <item_id>")
		}
		if err := adminService.RemoveItem(ctx, c.Sender().ID, id); err != nil {
			return replyError(c, log, err, "removing the item")
		}
		return c.Send(fmt.Sprintf("Item %d removed.", id))
	})

	admin("/source_delete", func(c telebot.Context, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /source_delete <name>")
		}
		if err := adminService.DeleteSource(ctx, c.Sender().ID, args[0]); err != nil {
			return replyError(c, log, err, "deleting the source")
		}
		return c.Send(fmt.Sprintf("Source %s deleted.", app.NormalizeSourceName(args[0])))
	})

	admin("/sources", func(c telebot.Context, log *logrus.Entry) error {
		sources, err := adminService.ListSources(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, log, err, "listing sources")
		}
		if len(sources) == 0 {
			return c.Send("No content sources yet.")
		}
		return c.Send(formatSources(sources))
	})

	admin("/schedule_add", func(c telebot.Context, log *logrus.Entry) error {
		spec, err := parseScheduleArgs(c.Data())
		if err != nil {
			log.WithError(err).Warn("Invalid command format")
			return c.Send(fmt.Sprintf("Invalid arguments: %s", err))
		}
		def, err := adminService.BuildDefinition(ctx, spec)
		if err != nil {
			return replyError(c, log, err, "creating the schedule")
		}
		if err := adminService.CreateSchedule(ctx, c.Sender().ID, def); err != nil {
			return replyError(c, log, err, "creating the schedule")
		}
		log.WithField("schedule_id", def.ID).Info("Schedule created")
		return c.Send("Schedule created:\n" + formatSchedule(def))
	})

	admin("/schedule_edit", func(c telebot.Context, log *logrus.Entry) error {
		id, spec, err := parseScheduleEdit(c.Data())
		if err != nil {
			log.WithError(err).Warn("Invalid command format")
			return c.Send(fmt.Sprintf("Invalid arguments: %s\nUsage: /schedule_edit <id> followed by the /schedule_add arguments", err))
		}
		def, err := adminService.BuildDefinition(ctx, spec)
		if err != nil {
			return replyError(c, log, err, "updating the schedule")
		}
		def.ID = id
		if err := adminService.UpdateSchedule(ctx, c.Sender().ID, def); err != nil {
			return replyError(c, log, err, "updating the schedule")
		}
		log.WithField("schedule_id", id).Info("Schedule updated")
		return c.Send("Schedule updated:\n" + formatSchedule(def))
	})

	admin("/schedules", func(c telebot.Context, log *logrus.Entry) error {
		defs, err := adminService.ListSchedules(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, log, err, "listing schedules")
		}
		if len(defs) == 0 {
			return c.Send("No schedules yet.")
		}
		return c.Send(formatSchedules(defs))
	})

	admin("/history", func(c telebot.Context, log *logrus.Entry) error {
		id, ok := singleID(c)
		if !ok {
			return c.Send("Usage: /history <schedule_id>")
		}
		history, err := adminService.GetScheduleHistory(ctx, c.Sender().ID, id, historyLimit)
		if err != nil {
			return replyError(c, log, err, "loading the schedule history")
		}
		return c.Send(formatHistory(history))
	})

	admin("/pause", func(c telebot.Context, log *logrus.Entry) error {
		id, ok := singleID(c)
		if !ok {
			return c.Send("Usage: /pause <schedule_id>")
		}
		def, err := adminService.PauseSchedule(ctx, c.Sender().ID, id)
		if err != nil {
			return replyError(c, log, err, "pausing the schedule")
		}
		return c.Send("Schedule paused:\n" + formatSchedule(def))
	})

	admin("/resume", func(c telebot.Context, log *logrus.Entry) error {
		id, ok := singleID(c)
		if !ok {
			return c.Send("Usage: /resume <schedule_id>")
		}
		def, err := adminService.ResumeSchedule(ctx, c.Sender().ID, id)
		if err != nil {
			return replyError(c, log, err, "resuming the schedule")
		}
		return c.Send("Schedule resumed:\n" + formatSchedule(def))
	})

	admin("/trigger", func(c telebot.Context, log *logrus.Entry) error {
		id, ok := singleID(c)
		if !ok {
			return c.Send("Usage: /trigger <schedule_id>")
		}
		summary, err := adminService.TriggerNow(ctx, c.Sender().ID, id)
		if err != nil {
			return replyError(c, log, err, "triggering the schedule")
		}
		log.WithFields(logrus.Fields{"schedule_id": id, "sent": summary.Sent, "failed": summary.Failed}).Info("Schedule triggered")
		return c.Send(formatFireSummary(id, summary))
	})

	admin("/subscribers", func(c telebot.Context, log *logrus.Entry) error {
		subs, err := adminService.ListSubscribers(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, log, err, "listing subscribers")
		}
		if len(subs) == 0 {
			return c.Send("No subscribers yet.")
		}
		return c.Send(formatSubscribers(subs))
	})

	admin("/metrics", func(c telebot.Context, log *logrus.Entry) error {
		chatID, ok := singleID(c)
		if !ok {
			return c.Send("Usage: /metrics <chat_id>")
		}
		metrics, err := adminService.GetMetrics(ctx, c.Sender().ID, chatID)
		if err != nil {
			return replyError(c, log, err, "loading metrics")
		}
		return c.Send(app.RenderMetrics(metrics))
	})

	admin("/reset", func(c telebot.Context, log *logrus.Entry) error {
		chatID, ok := singleID(c)
		if !ok {
			return c.Send("Usage: /reset <chat_id>")
		}
		deleted, err := adminService.ResetSubscriber(ctx, c.Sender().ID, chatID)
		if err != nil {
			return replyError(c, log, err, "resetting the subscriber")
		}
		log.WithFields(logrus.Fields{"chat_id": chatID, "deleted": deleted}).Info("Subscriber reset")
		return c.Send(fmt.Sprintf("Subscriber %d reset, %d delivery records removed. Next delivery starts at day 1.", chatID, deleted))
	})

	setBlocked := func(blocked bool, usage, done string) adminFunc {
		return func(c telebot.Context, log *logrus.Entry) error {
			chatID, ok := singleID(c)
			if !ok {
				return c.Send(usage)
			}
			if _, err := adminService.SetSubscriberBlocked(ctx, c.Sender().ID, chatID, blocked); err != nil {
				return replyError(c, log, err, "updating the subscriber")
			}
			return c.Send(fmt.Sprintf("Subscriber %d %s.", chatID, done))
		}
	}
	admin("/block", setBlocked(true, "Usage: /block <chat_id>", "blocked"))
	admin("/unblock", setBlocked(false, "Usage: /unblock <chat_id>", "unblocked"))
}

func singleID(c telebot.Context) (int64, bool) {
	args := c.Args()
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	return id, err == nil
}

// replyError maps service errors to a message for the admin.
func replyError(c telebot.Context, log *logrus.Entry, err error, action string) error {
	logWithError := log.WithError(err)
	var msg string
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		logWithError.Warn("Admin not authorized (service level)")
		return c.Send(unauthorizedMessage)
	case errors.Is(err, app.ErrEngineBusy):
		msg = "the engine is running a delivery pass right now, try again in a minute."
	case errors.Is(err, app.ErrInvalidSchedule),
		errors.Is(err, app.ErrInvalidItem),
		errors.Is(err, app.ErrEmptySource),
		errors.Is(err, app.ErrScheduleCompleted),
		errors.Is(err, app.ErrScheduleNotActive),
		errors.Is(err, app.ErrScheduleAlreadyFired),
		errors.Is(err, app.ErrInvalidTransition),
		errors.Is(err, app.ErrSourceInUse),
		errors.Is(err, idb.ErrDuplicateSourceName),
		errors.Is(err, idb.ErrScheduleNotFound),
		errors.Is(err, idb.ErrSourceNotFound),
		errors.Is(err, idb.ErrItemNotFound),
		errors.Is(err, idb.ErrSubscriberNotFound):
		msg = err.Error()
	default:
		logWithError.Errorf("Failed while %s", action)
		return c.Send(fmt.Sprintf("An error occurred while %s: %s", action, err.Error()))
	}
	logWithError.Warn("Request rejected")
	return c.Send("Error: " + msg)
}
