package telegram

import "gopkg.in/telebot.v3"

// MessageRef is a stable handle to a delivered message, sufficient to
// edit, delete or copy it later.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// Client defines the narrow transport surface the application uses.
// It decouples the core logic from the concrete bot library; every
// user-visible effect goes through this interface.
type Client interface {
	// SendMessage delivers a text message and returns a handle to it.
	SendMessage(chatID int64, text string, options *telebot.SendOptions) (MessageRef, error)
	// EditMessage replaces the text (and keyboard) of an existing message.
	EditMessage(ref MessageRef, text string, options *telebot.SendOptions) error
	// EditMessageMarkup replaces only the inline keyboard of an existing message.
	EditMessageMarkup(ref MessageRef, markup *telebot.ReplyMarkup) error
	// DeleteMessage removes a previously sent message.
	DeleteMessage(ref MessageRef) error
	// CopyMessage re-sends an existing message to a chat without the
	// "forwarded from" header, optionally attaching an inline keyboard.
	CopyMessage(toChatID int64, from MessageRef, markup *telebot.ReplyMarkup) (MessageRef, error)
	// ChatMemberStatus reports the membership status ("member",
	// "administrator", "creator", "left", ...) of a user in a chat,
	// addressed by its @username.
	ChatMemberStatus(chatUsername string, userID int64) (string, error)
	// SendDocument delivers an in-memory file as a document attachment.
	SendDocument(chatID int64, filename string, data []byte) error
}
