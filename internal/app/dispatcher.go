package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mcq_practice_bot/internal/domain/question"
	"mcq_practice_bot/internal/domain/session"
	"mcq_practice_bot/internal/domain/student"
	"mcq_practice_bot/internal/domain/telegram"
	"mcq_practice_bot/internal/domain/weekly"
	idb "mcq_practice_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// MessageEvent is a normalized inbound user message.
type MessageEvent struct {
	SenderID  int64
	ChatID    int64
	MessageID int
	Text      string
}

// CallbackEvent is a normalized inline-keyboard selection. Token is
// "name" or "name|arg".
type CallbackEvent struct {
	SenderID  int64
	ChatID    int64
	MessageID int
	Token     string
}

func splitToken(token string) (name, arg string) {
	if idx := strings.Index(token, "|"); idx >= 0 {
		return token[:idx], token[idx+1:]
	}
	return token, ""
}

// Config carries everything the dispatcher needs that used to live in
// the environment: the administrator identity set, the gated channel
// and the mini-app URLs. Handlers never consult ambient state.
type Config struct {
	AdminIDs        []int64
	ChannelUsername string // empty disables the membership gate
	ChannelURL      string
	WebAppURL       string
	HelpURL         string
	Top10WebAppURL  string
}

func (c Config) isAdmin(id int64) bool {
	for _, admin := range c.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// Dispatcher routes every inbound event: it applies the channel and
// registration gates, resolves the user's persisted session, and hands
// the event to exactly one of menu navigation, the quiz engine or the
// broadcast engine. Handlers persist the session before returning; the
// dispatcher itself performs no implicit persistence.
type Dispatcher struct {
	cfg       Config
	sessions  session.Repository
	students  student.Repository
	questions question.Repository
	quiz      *QuizService
	broadcast *BroadcastService
	client    telegram.Client
	menus     *MenuRenderer
	logger    *logrus.Entry
}

func NewDispatcher(
	cfg Config,
	sessions session.Repository,
	students student.Repository,
	questions question.Repository,
	quiz *QuizService,
	broadcast *BroadcastService,
	client telegram.Client,
	menus *MenuRenderer,
	logger *logrus.Entry,
) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		sessions:  sessions,
		students:  students,
		questions: questions,
		quiz:      quiz,
		broadcast: broadcast,
		client:    client,
		menus:     menus,
		logger:    logger,
	}
}

// HandleMessage processes a free-text or command message.
func (d *Dispatcher) HandleMessage(ctx context.Context, ev MessageEvent) error {
	text := strings.TrimSpace(ev.Text)
	command := strings.ToLower(text)
	if idx := strings.IndexAny(command, " @"); strings.HasPrefix(command, "/") && idx > 0 {
		command = command[:idx]
	}

	logCtx := d.logger.WithFields(logrus.Fields{"sender_id": ev.SenderID})

	// Administrator commands and in-progress broadcast states come
	// before the general gates and routing: admins are not required to
	// be registered students.
	if d.cfg.isAdmin(ev.SenderID) {
		sess, err := d.sessions.Get(ctx, ev.SenderID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		switch {
		case command == "/broadcast":
			logCtx.Info("Broadcast builder opened")
			return d.broadcast.Begin(ctx, sess, ev.ChatID)
		case command == "/cancel" && sess.Data.Broadcast != nil:
			return d.broadcast.Cancel(ctx, sess, ev.ChatID)
		case sess.State == session.StateBroadcastContent && !strings.HasPrefix(command, "/"):
			return d.broadcast.AppendPost(ctx, sess, ev.ChatID,
				telegram.MessageRef{ChatID: ev.ChatID, MessageID: ev.MessageID})
		case sess.State == session.StateBroadcastButtons && !strings.HasPrefix(command, "/"):
			return d.broadcast.SetButtons(ctx, sess, ev.ChatID, text)
		}
	} else if command == "/broadcast" {
		logCtx.Warn("Unauthorized broadcast attempt")
		_, err := d.client.SendMessage(ev.ChatID, "You are not allowed to use this command.", nil)
		return err
	}

	switch command {
	case "/start":
		return d.handleStart(ctx, ev.SenderID, ev.ChatID)
	case "/help":
		_, err := d.client.SendMessage(ev.ChatID,
			"Use /start to open the main menu. Practice MCQs, sit the weekly paper, and track your progress in the Web App.", nil)
		return err
	}

	_, err := d.client.SendMessage(ev.ChatID, "Use /start to open the main menu.", nil)
	return err
}

// HandleCallback processes an inline-keyboard selection.
func (d *Dispatcher) HandleCallback(ctx context.Context, ev CallbackEvent) error {
	name, arg := splitToken(ev.Token)

	// Broadcast builder controls are admin-scoped and bypass the
	// student gates, like the commands that open them.
	if strings.HasPrefix(name, "bc_") {
		return d.handleBroadcastToken(ctx, ev, name)
	}

	// The explicit re-check selections re-run the gates by design.
	if name == "done_join" || name == "check_registered" {
		return d.handleStart(ctx, ev.SenderID, ev.ChatID)
	}

	st, ok, err := d.passGates(ctx, ev.SenderID, ev.ChatID)
	if err != nil || !ok {
		return err
	}

	sess, err := d.sessions.Get(ctx, ev.SenderID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	// Quiz-answer tokens route to the quiz engine regardless of the
	// persisted state; the engine re-validates and drops stale taps.
	switch name {
	case "quiz_answer":
		chosen, err := strconv.Atoi(arg)
		if err != nil || chosen < 1 || chosen > 4 {
			return nil
		}
		return d.quiz.SubmitAnswer(ctx, sess, ev.ChatID, ev.MessageID, chosen)
	case "quiz_next":
		return d.quiz.Next(ctx, sess, ev.ChatID)
	case "quiz_giveup":
		return d.quiz.GiveUp(ctx, sess, ev.ChatID)
	case "quiz_export":
		return d.quiz.Export(ctx, sess, ev.ChatID)
	}

	switch name {
	case "goto_main_menu":
		return d.showMainMenu(ctx, sess, ev.ChatID, st)
	case "menu_practice":
		return d.showSubjectChooser(ctx, sess, ev.ChatID)
	case "menu_weekly":
		return d.showWeeklyMenu(ctx, sess, ev.ChatID)
	case "menu_about":
		_, err := d.client.SendMessage(ev.ChatID,
			"ℹ️ *About Us*\n\n"+
				"This bot helps A/L students practice MCQs in Physics, Chemistry, Bio and Maths.\n"+
				"• Lesson, term and exam-target practice\n"+
				"• Weekly mixed papers with rankings\n"+
				"• Detailed analytics and PDFs in the Web App.",
			markdownOpts())
		return err
	case "practice_subject":
		return d.handleSubjectChosen(ctx, sess, ev.ChatID, arg)
	case "practice_type":
		return d.handlePracticeType(ctx, sess, ev.ChatID, arg)
	case "practice_lesson":
		return d.handleLessonChosen(ctx, sess, ev.ChatID, arg)
	case "practice_term":
		return d.handleTermChosen(ctx, sess, ev.ChatID, arg)
	case "practice_qcount":
		return d.handleQCountChosen(ctx, sess, ev.ChatID, arg)
	case "weekly_stream":
		return d.handleWeeklyStream(ctx, sess, ev.ChatID, arg)
	case "weekly_attend":
		return d.handleWeeklyAttend(ctx, sess, ev.ChatID, arg)
	case "noop":
		return nil
	}

	// Unknown or out-of-state token: no-op, session unchanged.
	d.logger.WithFields(logrus.Fields{"token": ev.Token, "sender_id": ev.SenderID}).Debug("Dropped unroutable callback token")
	return nil
}

func (d *Dispatcher) handleBroadcastToken(ctx context.Context, ev CallbackEvent, name string) error {
	if !d.cfg.isAdmin(ev.SenderID) {
		_, err := d.client.SendMessage(ev.ChatID, "You are not allowed to use this command.", nil)
		return err
	}
	sess, err := d.sessions.Get(ctx, ev.SenderID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	switch name {
	case "bc_buttons":
		return d.broadcast.RequestButtons(ctx, sess, ev.ChatID)
	case "bc_confirm":
		return d.broadcast.Confirm(ctx, sess, ev.ChatID)
	case "bc_cancel":
		return d.broadcast.Cancel(ctx, sess, ev.ChatID)
	}
	return nil
}

// passGates applies the channel-membership and registration gates, in
// that order, ahead of any state-specific logic. It sends the
// appropriate prompt itself and reports whether routing may proceed.
func (d *Dispatcher) passGates(ctx context.Context, userID, chatID int64) (*student.Student, bool, error) {
	if d.cfg.ChannelUsername != "" {
		status, err := d.client.ChatMemberStatus(d.cfg.ChannelUsername, userID)
		if err != nil {
			d.logger.WithError(err).WithField("user_id", userID).Error("Channel membership check failed")
			status = "" // treated as not a member
		}
		if status != "member" && status != "administrator" && status != "creator" {
			markup := buildMarkup([][]MenuButton{
				{{Label: "📲 Join Channel", URL: d.cfg.ChannelURL}},
				{{Label: "✅ Done & Start", Token: "done_join"}},
			})
			_, err := d.client.SendMessage(chatID,
				"📢 Please join our channel before using the A/L MCQ bot.\n\nAfter joining, tap \"Done & Start\".",
				sendOpts(markup))
			return nil, false, err
		}
	}

	st, err := d.students.GetByTelegramID(ctx, userID)
	if err != nil {
		if errors.Is(err, idb.ErrStudentNotFound) {
			markup := buildMarkup([][]MenuButton{
				{{Label: "📝 Register / Login", WebApp: d.cfg.WebAppURL}},
				{{Label: "❓ Help", URL: d.cfg.HelpURL}},
				{{Label: "✅ I have registered", Token: "check_registered"}},
			})
			_, sendErr := d.client.SendMessage(chatID,
				"👋 Welcome to the A/L MCQ Bot.\n\nYou are *not registered* yet. Please sign up using the Web App.",
				sendOptsMarkdown(markup))
			return nil, false, sendErr
		}
		d.logger.WithError(err).WithField("user_id", userID).Error("Registration check failed")
		_, sendErr := d.client.SendMessage(chatID, "Something went wrong while checking your account. Please try again later.", nil)
		return nil, false, sendErr
	}
	return st, true, nil
}

func (d *Dispatcher) handleStart(ctx context.Context, userID, chatID int64) error {
	st, ok, err := d.passGates(ctx, userID, chatID)
	if err != nil || !ok {
		return err
	}
	sess, err := d.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	return d.showMainMenu(ctx, sess, chatID, st)
}

func (d *Dispatcher) showMainMenu(ctx context.Context, sess *session.Session, chatID int64, st *student.Student) error {
	name := "Student"
	if st != nil && st.FullName != "" {
		name = st.FullName
	}

	sess.State = session.StateIdle
	sess.ResetNavigation()
	sess.ClearQuiz()
	if st != nil {
		sess.Data.StudentID = st.ID
	}

	menu := Menu{
		Text: fmt.Sprintf("👋 Hi *%s*!\nWelcome to the A/L MCQ practice bot.\n\nChoose an option:", name),
		Rows: [][]MenuButton{
			{{Label: "📚 Practice MCQs", Token: "menu_practice"}},
			{{Label: "🏆 Weekly Paper", Token: "menu_weekly"}},
			{{Label: "ℹ️ About Us", Token: "menu_about"}},
		},
		Kind: session.MenuNav,
	}
	if err := d.menus.Show(sess, chatID, menu); err != nil {
		return fmt.Errorf("failed to show main menu: %w", err)
	}
	return d.sessions.Upsert(ctx, sess)
}

func (d *Dispatcher) showSubjectChooser(ctx context.Context, sess *session.Session, chatID int64) error {
	sess.State = session.StateChoosingSubject
	sess.ResetNavigation()
	sess.ClearQuiz()

	menu := Menu{
		Text: "📚 *Practice MCQs*\n\nSelect a subject:",
		Rows: [][]MenuButton{
			{{Label: "Physics", Token: "practice_subject", Arg: "1"}, {Label: "Chemistry", Token: "practice_subject", Arg: "2"}},
			{{Label: "Bio", Token: "practice_subject", Arg: "3"}, {Label: "Maths", Token: "practice_subject", Arg: "4"}},
			{{Label: "⬅️ Main Menu", Token: "goto_main_menu"}},
		},
		Kind: session.MenuNav,
	}
	if err := d.menus.Show(sess, chatID, menu); err != nil {
		return fmt.Errorf("failed to show subject chooser: %w", err)
	}
	return d.sessions.Upsert(ctx, sess)
}

func (d *Dispatcher) handleSubjectChosen(ctx context.Context, sess *session.Session, chatID int64, arg string) error {
	if sess.State != session.StateChoosingSubject {
		return nil
	}
	subjectID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || subjectID < 1 || subjectID > 4 {
		return nil
	}

	sess.State = session.StateChoosingType
	sess.Data.SubjectID = subjectID
	sess.Data.PracticeType = ""
	sess.Data.Lesson = 0
	sess.Data.Term = ""

	menu := Menu{
		Text: fmt.Sprintf("You selected *%s*.\n\nWhat do you want to practice?", subjectLabel(subjectID)),
		Rows: [][]MenuButton{
			{{Label: "Lesson target MCQs", Token: "practice_type", Arg: "lesson"}},
			{{Label: "A/L exam target MCQs", Token: "practice_type", Arg: "exam"}},
			{{Label: "Term test target MCQs", Token: "practice_type", Arg: "term"}},
			{{Label: "⬅️ Back to subjects", Token: "menu_practice"}},
		},
		Kind: session.MenuNav,
	}
	if err := d.menus.Show(sess, chatID, menu); err != nil {
		return fmt.Errorf("failed to show type chooser: %w", err)
	}
	return d.sessions.Upsert(ctx, sess)
}

func (d *Dispatcher) handlePracticeType(ctx context.Context, sess *session.Session, chatID int64, arg string) error {
	if sess.State != session.StateChoosingType {
		return nil
	}

	switch session.PracticeType(arg) {
	case session.PracticeLesson:
		sess.Data.PracticeType = session.PracticeLesson
		return d.showLessonChooser(ctx, sess, chatID)
	case session.PracticeTerm:
		sess.Data.PracticeType = session.PracticeTerm
		return d.showTermChooser(ctx, sess, chatID)
	case session.PracticeExam:
		sess.Data.PracticeType = session.PracticeExam
		return d.showQCountChooser(ctx, sess, chatID)
	}
	return nil
}

func (d *Dispatcher) showLessonChooser(ctx context.Context, sess *session.Session, chatID int64) error {
	lessons, err := d.questions.DistinctLessons(ctx, sess.Data.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to list lessons: %w", err)
	}
	if len(lessons) == 0 {
		_, err := d.client.SendMessage(chatID, "No lessons found for this subject.", nil)
		return err
	}

	// Two lessons per row.
	var rows [][]MenuButton
	for i := 0; i < len(lessons); i += 2 {
		row := []MenuButton{{
			Label: fmt.Sprintf("Lesson %d", lessons[i]),
			Token: "practice_lesson", Arg: strconv.Itoa(lessons[i]),
		}}
		if i+1 < len(lessons) {
			row = append(row, MenuButton{
				Label: fmt.Sprintf("Lesson %d", lessons[i+1]),
				Token: "practice_lesson", Arg: strconv.Itoa(lessons[i+1]),
			})
		}
		rows = append(rows, row)
	}
	rows = append(rows, []MenuButton{{Label: "⬅️ Back", Token: "menu_practice"}})

	if err := d.menus.Show(sess, chatID, Menu{Text: "Select a lesson:", Rows: rows, Kind: session.MenuNav}); err != nil {
		return fmt.Errorf("failed to show lesson chooser: %w", err)
	}
	return d.sessions.Upsert(ctx, sess)
}

func (d *Dispatcher) showTermChooser(ctx context.Context, sess *session.Session, chatID int64) error {
	terms, err := d.questions.DistinctTerms(ctx, sess.Data.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to list terms: %w", err)
	}
	if len(terms) == 0 {
		_, err := d.client.SendMessage(chatID, "No terms found for this subject.", nil)
		return err
	}

	var rows [][]MenuButton
	for _, term := range terms {
		rows = append(rows, []MenuButton{{Label: term, Token: "practice_term", Arg: term}})
	}
	rows = append(rows, []MenuButton{{Label: "⬅️ Back", Token: "menu_practice"}})

	if err := d.menus.Show(sess, chatID, Menu{Text: "Select a term:", Rows: rows, Kind: session.MenuNav}); err != nil {
		return fmt.Errorf("failed to show term chooser: %w", err)
	}
	return d.sessions.Upsert(ctx, sess)
}

func (d *Dispatcher) handleLessonChosen(ctx context.Context, sess *session.Session, chatID int64, arg string) error {
	if sess.State != session.StateChoosingType || sess.Data.PracticeType != session.PracticeLesson {
		return nil
	}
	lesson, err := strconv.Atoi(arg)
	if err != nil {
		return nil
	}
	sess.Data.Lesson = lesson
	return d.showQCountChooser(ctx, sess, chatID)
}

func (d *Dispatcher) handleTermChosen(ctx context.Context, sess *session.Session, chatID int64, arg string) error {
	if sess.State != session.StateChoosingType || sess.Data.PracticeType != session.PracticeTerm {
		return nil
	}
	if arg == "" {
		return nil
	}
	sess.Data.Term = arg
	return d.showQCountChooser(ctx, sess, chatID)
}

func (d *Dispatcher) showQCountChooser(ctx context.Context, sess *session.Session, chatID int64) error {
	sess.State = session.StateChoosingQCount

	menu := Menu{
		Text: "How many questions do you want?",
		Rows: [][]MenuButton{
			{
				{Label: "10", Token: "practice_qcount", Arg: "10"},
				{Label: "20", Token: "practice_qcount", Arg: "20"},
				{Label: "30", Token: "practice_qcount", Arg: "30"},
			},
			{
				{Label: "40", Token: "practice_qcount", Arg: "40"},
				{Label: "50", Token: "practice_qcount", Arg: "50"},
			},
			{{Label: "⬅️ Back", Token: "menu_practice"}},
		},
		Kind: session.MenuNav,
	}
	if err := d.menus.Show(sess, chatID, menu); err != nil {
		return fmt.Errorf("failed to show question count chooser: %w", err)
	}
	return d.sessions.Upsert(ctx, sess)
}

func (d *Dispatcher) handleQCountChosen(ctx context.Context, sess *session.Session, chatID int64, arg string) error {
	if sess.State != session.StateChoosingQCount {
		return nil
	}
	count, err := strconv.Atoi(arg)
	if err != nil || count <= 0 {
		return nil
	}
	return d.quiz.StartPractice(ctx, sess, chatID, count)
}

func (d *Dispatcher) showWeeklyMenu(ctx context.Context, sess *session.Session, chatID int64) error {
	sess.State = session.StateWeeklyMenu
	sess.ClearQuiz()

	menu := Menu{
		Text: "🏆 *Weekly Paper*\n\nSelect your stream:",
		Rows: [][]MenuButton{
			{
				{Label: "Bio Stream", Token: "weekly_stream", Arg: "bio"},
				{Label: "Maths Stream", Token: "weekly_stream", Arg: "maths"},
			},
			{{Label: "⬅️ Main Menu", Token: "goto_main_menu"}},
		},
		Kind: session.MenuNav,
	}
	if err := d.menus.Show(sess, chatID, menu); err != nil {
		return fmt.Errorf("failed to show weekly menu: %w", err)
	}
	return d.sessions.Upsert(ctx, sess)
}

func (d *Dispatcher) handleWeeklyStream(ctx context.Context, sess *session.Session, chatID int64, arg string) error {
	if sess.State != session.StateWeeklyMenu {
		return nil
	}
	stream := weekly.Stream(arg)
	if !stream.Valid() {
		return nil
	}

	sess.State = session.StateWeeklyStream
	label := "Bio Stream"
	if stream == weekly.StreamMaths {
		label = "Maths Stream"
	}

	menu := Menu{
		Text: fmt.Sprintf("🏆 *Weekly Paper: %s*\n\nAttend this week's paper via the bot and view the *Top 10* leaderboard in the Web App.", label),
		Rows: [][]MenuButton{
			{{Label: "✏️ Attend Paper", Token: "weekly_attend", Arg: string(stream)}},
			{{Label: "🏅 View Top 10", WebApp: d.cfg.Top10WebAppURL + "?stream=" + string(stream)}},
			{{Label: "⬅️ Back", Token: "menu_weekly"}},
		},
		Kind: session.MenuNav,
	}
	if err := d.menus.Show(sess, chatID, menu); err != nil {
		return fmt.Errorf("failed to show weekly stream menu: %w", err)
	}
	return d.sessions.Upsert(ctx, sess)
}

func (d *Dispatcher) handleWeeklyAttend(ctx context.Context, sess *session.Session, chatID int64, arg string) error {
	if sess.State != session.StateWeeklyStream {
		return nil
	}
	stream := weekly.Stream(arg)
	if !stream.Valid() {
		return nil
	}
	return d.quiz.StartWeekly(ctx, sess, chatID, stream)
}
