package scheduler

import (
	"context"
	"time"

	"mcq_practice_bot/internal/domain/student"
	"mcq_practice_bot/internal/domain/telegram"
	"mcq_practice_bot/internal/domain/weekly"
	idb "mcq_practice_bot/internal/infra/database"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// AnnouncementScheduler notifies every registered student when a fresh
// weekly paper is available. The job is best-effort: per-recipient
// failures are logged and skipped, and an absent cycle is not an error.
type AnnouncementScheduler struct {
	cronEngine *cron.Cron
	weekly     weekly.Repository
	students   student.Repository
	client     telegram.Client
	logger     *logrus.Entry
	cronSpec   string
	delay      time.Duration
}

func NewAnnouncementScheduler(
	weeklyRepo weekly.Repository,
	students student.Repository,
	client telegram.Client,
	logger *logrus.Entry,
	cronSpec string,
	delay time.Duration,
) *AnnouncementScheduler {
	return &AnnouncementScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)),
		weekly:     weeklyRepo,
		students:   students,
		client:     client,
		logger:     logger,
		cronSpec:   cronSpec,
		delay:      delay,
	}
}

func (s *AnnouncementScheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Info("Weekly announcement job triggered")
		s.announce(context.Background())
	})
	if err != nil {
		return err
	}
	s.cronEngine.Start()
	return nil
}

func (s *AnnouncementScheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
}

func (s *AnnouncementScheduler) announce(ctx context.Context) {
	cycleStart, err := s.weekly.LatestCycleStart(ctx)
	if err != nil {
		if err == idb.ErrNoWeeklyCycle {
			s.logger.Info("No weekly cycle scheduled; nothing to announce")
			return
		}
		s.logger.WithError(err).Error("Failed to resolve latest weekly cycle")
		return
	}
	if time.Since(cycleStart) > 7*24*time.Hour {
		s.logger.WithField("cycle_start", cycleStart.Format("2006-01-02")).Info("Latest cycle is stale; skipping announcement")
		return
	}

	ids, err := s.students.ListTelegramIDs(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list announcement recipients")
		return
	}

	text := "🏆 *This week's paper is out!*\n\nOpen the bot menu and attend it under Weekly Paper."
	sent, failed := 0, 0
	for i, id := range ids {
		if _, err := s.client.SendMessage(id, text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown}); err != nil {
			failed++
			s.logger.WithError(err).WithField("recipient", id).Warn("Weekly announcement delivery failed")
		} else {
			sent++
		}
		if i < len(ids)-1 && s.delay > 0 {
			time.Sleep(s.delay)
		}
	}
	s.logger.WithFields(logrus.Fields{"sent": sent, "failed": failed}).Info("Weekly announcement finished")
}
