// internal/infra/telegram/client.go
package telegram

import (
	"bytes"
	"fmt"
	"strconv"

	domain "mcq_practice_bot/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the domain Client interface using the
// gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// chatUsername lets a channel @username act as a telebot Recipient.
type chatUsername string

func (u chatUsername) Recipient() string { return string(u) }

func stored(ref domain.MessageRef) telebot.Editable {
	return &telebot.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
}

// SendMessage sends a text message to the specified chat.
func (tba *TelebotAdapter) SendMessage(chatID int64, text string, options *telebot.SendOptions) (domain.MessageRef, error) {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.User{ID: chatID} // Private chats only
	msg, err := tba.bot.Send(recipient, text, options)
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

// EditMessage replaces the text and keyboard of an existing message.
func (tba *TelebotAdapter) EditMessage(ref domain.MessageRef, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	_, err := tba.bot.Edit(stored(ref), text, options)
	return err
}

// EditMessageMarkup replaces only the inline keyboard of an existing message.
func (tba *TelebotAdapter) EditMessageMarkup(ref domain.MessageRef, markup *telebot.ReplyMarkup) error {
	_, err := tba.bot.EditReplyMarkup(stored(ref), markup)
	return err
}

// DeleteMessage removes a previously sent message.
func (tba *TelebotAdapter) DeleteMessage(ref domain.MessageRef) error {
	return tba.bot.Delete(stored(ref))
}

// CopyMessage re-sends an existing message into a chat, optionally
// attaching an inline keyboard to the copy.
func (tba *TelebotAdapter) CopyMessage(toChatID int64, from domain.MessageRef, markup *telebot.ReplyMarkup) (domain.MessageRef, error) {
	recipient := &telebot.User{ID: toChatID}

	var opts []interface{}
	if markup != nil {
		opts = append(opts, markup)
	}
	msg, err := tba.bot.Copy(recipient, stored(from), opts...)
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

// ChatMemberStatus reports the membership status of a user in the chat
// addressed by @username.
func (tba *TelebotAdapter) ChatMemberStatus(username string, userID int64) (string, error) {
	member, err := tba.bot.ChatMemberOf(chatUsername(username), &telebot.User{ID: userID})
	if err != nil {
		return "", fmt.Errorf("error fetching chat member status: %w", err)
	}
	return string(member.Role), nil
}

// SendDocument delivers an in-memory file as a document attachment.
func (tba *TelebotAdapter) SendDocument(chatID int64, filename string, data []byte) error {
	doc := &telebot.Document{
		File:     telebot.FromReader(bytes.NewReader(data)),
		FileName: filename,
	}
	_, err := tba.bot.Send(&telebot.User{ID: chatID}, doc)
	return err
}
