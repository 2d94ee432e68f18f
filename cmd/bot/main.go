package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcq_practice_bot/internal/app"
	"mcq_practice_bot/internal/infra/config"
	idb "mcq_practice_bot/internal/infra/database"
	"mcq_practice_bot/internal/infra/logger"
	"mcq_practice_bot/internal/infra/scheduler"
	itg "mcq_practice_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	log := logger.Get().WithField("component", "main")
	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"admin_count": len(cfg.AdminTelegramIDs),
	}).Info("MCQ practice bot starting")

	// Database
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	if err := idb.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.WithError(err).Fatal("Could not apply database migrations")
	}
	log.Info("Database ready")

	// Repositories
	sessionRepo := idb.NewPostgresSessionRepository(db)
	questionRepo := idb.NewPostgresQuestionRepository(db)
	studentRepo := idb.NewPostgresStudentRepository(db)
	weeklyRepo := idb.NewPostgresWeeklyRepository(db)
	resultRepo := idb.NewPostgresResultRepository(db)

	// Telegram bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := logger.Get().WithField("component", "telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Unhandled bot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.WithError(err).Fatal("Could not create Telegram bot")
	}

	client := itg.NewTelebotAdapter(bot)
	diag := &app.LogrusDiagnostics{Entry: logger.Get().WithField("component", "diagnostics")}
	menus := app.NewMenuRenderer(client, diag)

	quizService := app.NewQuizService(
		sessionRepo, questionRepo, weeklyRepo, resultRepo,
		client, diag, logger.Get().WithField("component", "quiz"), cfg.WebAppURL,
	)
	broadcastService := app.NewBroadcastService(
		sessionRepo, studentRepo,
		client, diag, logger.Get().WithField("component", "broadcast"), cfg.BroadcastDelay,
	)
	dispatcher := app.NewDispatcher(
		app.Config{
			AdminIDs:        cfg.AdminTelegramIDs,
			ChannelUsername: cfg.ChannelUsername,
			ChannelURL:      cfg.ChannelURL,
			WebAppURL:       cfg.WebAppURL,
			HelpURL:         cfg.HelpURL,
			Top10WebAppURL:  cfg.Top10WebAppURL,
		},
		sessionRepo, studentRepo, questionRepo,
		quizService, broadcastService,
		client, menus, logger.Get().WithField("component", "dispatcher"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	itg.RegisterHandlers(ctx, bot, dispatcher, logger.Get().WithField("component", "handlers"))
	log.Info("Update handlers registered")

	announcer := scheduler.NewAnnouncementScheduler(
		weeklyRepo, studentRepo, client,
		logger.Get().WithField("component", "scheduler"),
		cfg.CronSpecWeekly, cfg.BroadcastDelay,
	)
	if err := announcer.Start(); err != nil {
		log.WithError(err).Fatal("Could not start announcement scheduler")
	}

	go bot.Start()
	log.Info("Bot is polling for updates")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	cancel()
	announcer.Stop()
	bot.Stop()
	log.Info("Shut down gracefully")
}
