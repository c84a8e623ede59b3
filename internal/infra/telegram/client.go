package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/telebot.v3"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/notifier"
)

// Sender is the part of *telebot.Bot the adapter needs.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter implements notifier.Notifier using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot Sender
}

func NewTelebotAdapter(b Sender) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// Send delivers caption as text, or item as a document with caption when
// item is a file.
func (tba *TelebotAdapter) Send(ctx context.Context, recipient int64, item *content.Item, caption string) (string, error) {
	return tba.send(ctx, recipient, item, caption, nil)
}

func (tba *TelebotAdapter) SendWithButtons(ctx context.Context, recipient int64, item *content.Item, caption string, buttons [][]notifier.Button) (string, error) {
	return tba.send(ctx, recipient, item, caption, inlineMarkup(buttons))
}

func (tba *TelebotAdapter) send(ctx context.Context, recipient int64, item *content.Item, caption string, markup *telebot.ReplyMarkup) (string, error) {
	// telebot has no context support; the HTTP client timeout bounds the call.
	if err := ctx.Err(); err != nil {
		return "", &notifier.DeliveryError{Recipient: recipient, Err: err}
	}

	options := &telebot.SendOptions{ReplyMarkup: markup}
	var what interface{} = caption
	if item != nil && item.Kind == content.KindFile {
		what = document(item, caption)
	}

	msg, err := tba.bot.Send(&telebot.Chat{ID: recipient}, what, options)
	if err != nil {
		return "", &notifier.DeliveryError{Recipient: recipient, Permanent: isPermanent(err), Err: err}
	}
	return strconv.Itoa(msg.ID), nil
}

// document resolves a file reference: an http(s) URL, a local path, or a
// Telegram file_id of a previously uploaded file.
func document(item *content.Item, caption string) *telebot.Document {
	var file telebot.File
	switch {
	case strings.HasPrefix(item.Ref, "http://") || strings.HasPrefix(item.Ref, "https://"):
		file = telebot.FromURL(item.Ref)
	case fileExists(item.Ref):
		file = telebot.FromDisk(item.Ref)
	default:
		file = telebot.File{FileID: item.Ref}
	}

	doc := &telebot.Document{File: file, Caption: caption}
	if file.FileLocal != "" {
		doc.FileName = filepath.Base(file.FileLocal)
	}
	return doc
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// isPermanent marks errors after which retrying the same chat is pointless.
func isPermanent(err error) bool {
	for _, perm := range []error{
		telebot.ErrBlockedByUser,
		telebot.ErrUserIsDeactivated,
		telebot.ErrChatNotFound,
		telebot.ErrNotStartedByUser,
		telebot.ErrKickedFromGroup,
	} {
		if errors.Is(err, perm) {
			return true
		}
	}
	return false
}

func inlineMarkup(buttons [][]notifier.Button) *telebot.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	keyboard := make([][]telebot.InlineButton, 0, len(buttons))
	for _, row := range buttons {
		line := make([]telebot.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, telebot.InlineButton{Text: b.Text, Data: callbackData(b.Action, b.Payload)})
		}
		keyboard = append(keyboard, line)
	}
	return &telebot.ReplyMarkup{InlineKeyboard: keyboard}
}
