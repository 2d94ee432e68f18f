package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mcq_practice_bot/internal/domain/session"
	"mcq_practice_bot/internal/domain/student"
	"mcq_practice_bot/internal/domain/telegram"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// BroadcastService accumulates an administrator-composed set of posts,
// attaches link buttons, and replicates everything to every registered
// recipient with partial-failure tolerance. Delivery of one post to one
// recipient is independent of every other pair; atomicity is an
// explicit non-goal.
type BroadcastService struct {
	sessions session.Repository
	students student.Repository
	client   telegram.Client
	diag     Diagnostics
	logger   *logrus.Entry
	delay    time.Duration

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

func NewBroadcastService(
	sessions session.Repository,
	students student.Repository,
	client telegram.Client,
	diag Diagnostics,
	logger *logrus.Entry,
	delay time.Duration,
) *BroadcastService {
	return &BroadcastService{
		sessions: sessions,
		students: students,
		client:   client,
		diag:     diag,
		logger:   logger,
		delay:    delay,
		sleep:    time.Sleep,
	}
}

// ParseButtons parses newline-delimited button specifications. Each
// line is either "label - url" or a bare url; the label of a bare url
// is derived from its host, falling back to a positional label. Lines
// whose URL is not http(s) are discarded silently.
func ParseButtons(spec string) []session.Button {
	var buttons []session.Button
	for _, line := range strings.Split(spec, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var label, rawURL string
		if idx := strings.Index(line, " - "); idx >= 0 {
			label = strings.TrimSpace(line[:idx])
			rawURL = strings.TrimSpace(line[idx+3:])
		} else {
			rawURL = line
		}

		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if label == "" {
			label = u.Host
		}
		if label == "" {
			label = fmt.Sprintf("Link %d", len(buttons)+1)
		}
		buttons = append(buttons, session.Button{Label: label, URL: u.String()})
	}
	return buttons
}

func buttonsMarkup(buttons []session.Button) *telebot.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]MenuButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []MenuButton{{Label: b.Label, URL: b.URL}})
	}
	return buildMarkup(rows)
}

// Begin opens the builder for an administrator, replacing any previous
// unfinished job.
func (s *BroadcastService) Begin(ctx context.Context, sess *session.Session, chatID int64) error {
	sess.State = session.StateBroadcastContent
	sess.Data.Broadcast = &session.BroadcastJob{ID: uuid.NewString()}
	if err := s.refreshControlMenu(sess, chatID); err != nil {
		s.diag.Report("broadcast.control_menu", err, nil)
	}
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist broadcast start: %w", err)
	}
	return nil
}

// refreshControlMenu re-edits the single builder message in place to
// show current counts, creating it on first use.
func (s *BroadcastService) refreshControlMenu(sess *session.Session, chatID int64) error {
	job := sess.Data.Broadcast

	text := fmt.Sprintf(
		"📣 *Broadcast builder*\n\nPosts queued: *%d*\nButtons: *%d*\n\n"+
			"Send me messages to queue them. Each one is mirrored back as a preview.",
		len(job.Posts), len(job.Buttons))

	markup := buildMarkup([][]MenuButton{
		{{Label: "🔗 Set Buttons", Token: "bc_buttons"}},
		{{Label: "✅ Confirm & Send", Token: "bc_confirm"}},
		{{Label: "❌ Cancel", Token: "bc_cancel"}},
	})
	opts := &telebot.SendOptions{ParseMode: telebot.ModeMarkdown, ReplyMarkup: markup}

	if job.ControlMenu != nil {
		if err := s.client.EditMessage(*job.ControlMenu, text, opts); err == nil {
			return nil
		}
		// Stale or deleted control message; recreate below.
	}
	ref, err := s.client.SendMessage(chatID, text, opts)
	if err != nil {
		return err
	}
	job.ControlMenu = &ref
	return nil
}

// AppendPost queues one admin message as an opaque content reference,
// mirrors it back as a preview with the current buttons attached, and
// updates the builder counts.
func (s *BroadcastService) AppendPost(ctx context.Context, sess *session.Session, chatID int64, from telegram.MessageRef) error {
	job := sess.Data.Broadcast
	if sess.State != session.StateBroadcastContent || job == nil {
		return nil
	}

	job.Posts = append(job.Posts, from)

	preview, err := s.client.CopyMessage(chatID, from, buttonsMarkup(job.Buttons))
	if err != nil {
		s.diag.Report("broadcast.preview", err, map[string]interface{}{"job_id": job.ID})
	} else {
		job.PreviewRefs = append(job.PreviewRefs, preview)
	}

	if err := s.refreshControlMenu(sess, chatID); err != nil {
		s.diag.Report("broadcast.control_menu", err, nil)
	}
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist queued post: %w", err)
	}
	return nil
}

// RequestButtons asks the admin for button definitions.
func (s *BroadcastService) RequestButtons(ctx context.Context, sess *session.Session, chatID int64) error {
	job := sess.Data.Broadcast
	if job == nil {
		return nil
	}
	sess.State = session.StateBroadcastButtons
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist button request: %w", err)
	}
	_, err := s.client.SendMessage(chatID,
		"Send the buttons, one per line:\n\n`Label - https://example.com`\nor a bare URL (the label is taken from the host).",
		&telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	return err
}

// SetButtons parses the admin's definitions and, on success, replaces
// the button set atomically, patches every existing preview in place
// and advances the builder. Zero valid buttons keeps the state and asks
// again.
func (s *BroadcastService) SetButtons(ctx context.Context, sess *session.Session, chatID int64, spec string) error {
	job := sess.Data.Broadcast
	if sess.State != session.StateBroadcastButtons || job == nil {
		return nil
	}

	buttons := ParseButtons(spec)
	if len(buttons) == 0 {
		_, err := s.client.SendMessage(chatID,
			"No valid buttons found. Every line needs an http(s) URL. Please try again.", nil)
		return err
	}

	job.Buttons = buttons
	markup := buttonsMarkup(buttons)
	for _, ref := range job.PreviewRefs {
		if err := s.client.EditMessageMarkup(ref, markup); err != nil {
			s.diag.Report("broadcast.patch_preview", err, map[string]interface{}{"job_id": job.ID})
		}
	}

	sess.State = session.StateBroadcastReady
	if err := s.refreshControlMenu(sess, chatID); err != nil {
		s.diag.Report("broadcast.control_menu", err, nil)
	}
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist button set: %w", err)
	}
	return nil
}

// Confirm fans the queued posts out to every registered recipient.
// Failures are counted per recipient/post pair and never stop the rest
// of the run; a fixed delay between recipients respects the transport's
// rate limits.
func (s *BroadcastService) Confirm(ctx context.Context, sess *session.Session, chatID int64) error {
	job := sess.Data.Broadcast
	if job == nil {
		return nil
	}
	if len(job.Posts) == 0 {
		_, err := s.client.SendMessage(chatID, "Nothing to send: the broadcast queue is empty.", nil)
		return err
	}

	ids, err := s.students.ListTelegramIDs(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to enumerate broadcast recipients")
		_, sendErr := s.client.SendMessage(chatID, "Could not load the recipient list. Please try again later.", nil)
		return sendErr
	}

	// The source already deduplicates, but a duplicate identity must
	// never cause a double delivery.
	seen := make(map[int64]bool, len(ids))
	recipients := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}

	markup := buttonsMarkup(job.Buttons)
	delivered, failed := 0, 0
	for i, recipient := range recipients {
		for _, post := range job.Posts {
			if _, err := s.client.CopyMessage(recipient, post, markup); err != nil {
				failed++
				s.logger.WithError(err).WithFields(logrus.Fields{
					"recipient": recipient,
					"job_id":    job.ID,
				}).Warn("Broadcast delivery failed")
				continue
			}
			delivered++
		}
		if i < len(recipients)-1 && s.delay > 0 {
			s.sleep(s.delay)
		}
	}

	summary := fmt.Sprintf(
		"📣 Broadcast complete.\n\nDelivered: %d\nFailed: %d\nRecipients: %d\nPosts: %d",
		delivered, failed, len(recipients), len(job.Posts))

	postCount := len(job.Posts)
	sess.State = session.StateIdle
	sess.ClearBroadcast()
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to clear broadcast job: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"delivered":  delivered,
		"failed":     failed,
		"recipients": len(recipients),
		"posts":      postCount,
	}).Info("Broadcast fan-out finished")

	_, err = s.client.SendMessage(chatID, summary, nil)
	return err
}

// Cancel abandons the job at any point in the builder flow.
func (s *BroadcastService) Cancel(ctx context.Context, sess *session.Session, chatID int64) error {
	if sess.Data.Broadcast == nil {
		return nil
	}
	sess.State = session.StateIdle
	sess.ClearBroadcast()
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to cancel broadcast: %w", err)
	}
	_, err := s.client.SendMessage(chatID, "Broadcast cancelled.", nil)
	return err
}
