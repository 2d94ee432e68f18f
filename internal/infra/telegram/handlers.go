// internal/infra/telegram/handlers.go
package telegram

import (
	"context"
	"strings"

	"mcq_practice_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterHandlers funnels every supported update into the dispatcher.
// The adapter layer owns update normalization and callback
// acknowledgement; all conversation logic lives behind the dispatcher.
func RegisterHandlers(ctx context.Context, b *telebot.Bot, dispatcher *app.Dispatcher, baseLogger *logrus.Entry) {
	message := func(c telebot.Context) error {
		ev := app.MessageEvent{
			SenderID:  c.Sender().ID,
			ChatID:    c.Chat().ID,
			MessageID: c.Message().ID,
			Text:      c.Text(),
		}
		if err := dispatcher.HandleMessage(ctx, ev); err != nil {
			baseLogger.WithError(err).WithFields(logrus.Fields{
				"sender_id": ev.SenderID,
				"text":      ev.Text,
			}).Error("Failed to handle message")
		}
		// Never bubble errors back to telebot: one bad update must not
		// affect the next.
		return nil
	}

	b.Handle("/start", message)
	b.Handle("/help", message)
	b.Handle("/broadcast", message)
	b.Handle("/cancel", message)
	b.Handle(telebot.OnText, message)
	b.Handle(telebot.OnMedia, message)
	b.Handle(telebot.OnPhoto, message)
	b.Handle(telebot.OnDocument, message)

	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		cb := c.Callback()

		// Acknowledge first so the client drops its loading state even
		// if handling fails.
		if err := c.Respond(&telebot.CallbackResponse{}); err != nil {
			baseLogger.WithError(err).Warn("Failed to acknowledge callback")
		}

		ev := app.CallbackEvent{
			SenderID:  cb.Sender.ID,
			ChatID:    cb.Message.Chat.ID,
			MessageID: cb.Message.ID,
			Token:     callbackToken(cb),
		}
		if err := dispatcher.HandleCallback(ctx, ev); err != nil {
			baseLogger.WithError(err).WithFields(logrus.Fields{
				"sender_id": ev.SenderID,
				"token":     ev.Token,
			}).Error("Failed to handle callback")
		}
		return nil
	})
}

// callbackToken rebuilds the "name|arg" token regardless of whether
// telebot already split the unique part off the raw callback data.
func callbackToken(cb *telebot.Callback) string {
	if cb.Unique != "" {
		if cb.Data != "" {
			return cb.Unique + "|" + cb.Data
		}
		return cb.Unique
	}
	return strings.TrimPrefix(cb.Data, "\f")
}
