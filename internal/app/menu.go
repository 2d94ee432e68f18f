package app

import (
	"mcq_practice_bot/internal/domain/session"
	"mcq_practice_bot/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

// MenuButton is one inline button. Exactly one of Token, URL or WebApp
// is set; Arg optionally extends Token as its payload.
type MenuButton struct {
	Label  string
	Token  string
	Arg    string
	URL    string
	WebApp string
}

// Menu is a (text, options) pair rendered as a single updatable message.
type Menu struct {
	Text string
	Rows [][]MenuButton
	Kind session.MenuKind
}

// Markup converts the button grid into a telebot inline keyboard.
func (m Menu) Markup() *telebot.ReplyMarkup {
	return buildMarkup(m.Rows)
}

func buildMarkup(rows [][]MenuButton) *telebot.ReplyMarkup {
	rm := &telebot.ReplyMarkup{}
	teleRows := make([]telebot.Row, 0, len(rows))
	for _, row := range rows {
		btns := make([]telebot.Btn, 0, len(row))
		for _, b := range row {
			switch {
			case b.URL != "":
				btns = append(btns, rm.URL(b.Label, b.URL))
			case b.WebApp != "":
				btns = append(btns, rm.WebApp(b.Label, &telebot.WebApp{URL: b.WebApp}))
			case b.Arg != "":
				btns = append(btns, rm.Data(b.Label, b.Token, b.Arg))
			default:
				btns = append(btns, rm.Data(b.Label, b.Token))
			}
		}
		teleRows = append(teleRows, rm.Row(btns...))
	}
	rm.Inline(teleRows...)
	return rm
}

func sendOpts(markup *telebot.ReplyMarkup) *telebot.SendOptions {
	return &telebot.SendOptions{ReplyMarkup: markup}
}

func sendOptsMarkdown(markup *telebot.ReplyMarkup) *telebot.SendOptions {
	return &telebot.SendOptions{ParseMode: telebot.ModeMarkdown, ReplyMarkup: markup}
}

func markdownOpts() *telebot.SendOptions {
	return &telebot.SendOptions{ParseMode: telebot.ModeMarkdown}
}

// MenuRenderer keeps at most one menu message per chat on screen. A
// replacement of the same kind edits the tracked message in place;
// anything else retires the old message and sends a fresh one. The
// caller persists the session afterwards.
type MenuRenderer struct {
	client telegram.Client
	diag   Diagnostics
}

func NewMenuRenderer(client telegram.Client, diag Diagnostics) *MenuRenderer {
	return &MenuRenderer{client: client, diag: diag}
}

// Show renders the menu into the chat, reusing the session's current
// menu message when possible, and records the displayed ref + kind.
func (r *MenuRenderer) Show(s *session.Session, chatID int64, menu Menu) error {
	opts := &telebot.SendOptions{
		ParseMode:   telebot.ModeMarkdown,
		ReplyMarkup: menu.Markup(),
	}

	if s.Data.Menu != nil && s.Data.Menu.Kind == menu.Kind && s.Data.Menu.Ref.ChatID == chatID {
		if err := r.client.EditMessage(s.Data.Menu.Ref, menu.Text, opts); err == nil {
			return nil
		}
		// Edit can fail when the message was deleted client-side or the
		// content is identical; fall through to a fresh send.
		r.Retire(s)
	} else if s.Data.Menu != nil {
		r.Retire(s)
	}

	ref, err := r.client.SendMessage(chatID, menu.Text, opts)
	if err != nil {
		return err
	}
	s.Data.Menu = &session.MenuRef{Ref: ref, Kind: menu.Kind}
	return nil
}

// Retire deletes the tracked menu message. Deletion is best-effort;
// the ref is cleared either way so a stale handle never lingers.
func (r *MenuRenderer) Retire(s *session.Session) {
	if s.Data.Menu == nil {
		return
	}
	if err := r.client.DeleteMessage(s.Data.Menu.Ref); err != nil {
		r.diag.Report("menu.retire", err, map[string]interface{}{
			"chat_id":    s.Data.Menu.Ref.ChatID,
			"message_id": s.Data.Menu.Ref.MessageID,
		})
	}
	s.Data.Menu = nil
}
