package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"mcq_practice_bot/internal/domain/question"
	"mcq_practice_bot/internal/domain/result"
	"mcq_practice_bot/internal/domain/session"
	"mcq_practice_bot/internal/domain/telegram"
	"mcq_practice_bot/internal/domain/weekly"
	idb "mcq_practice_bot/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func subjectLabel(id int64) string {
	switch id {
	case 1:
		return "Physics"
	case 2:
		return "Chemistry"
	case 3:
		return "Bio"
	case 4:
		return "Maths"
	}
	return "Subject"
}

// answerLabel maps 1-based option indices to A-D. An unmapped index
// renders as a literal placeholder rather than failing.
func answerLabel(idx int) string {
	labels := []string{"A", "B", "C", "D"}
	if idx < 1 || idx > len(labels) {
		return "?"
	}
	return labels[idx-1]
}

// QuizService selects, orders, serves, scores and persists bounded
// question runs for both the self-paced practice mode and the shared
// weekly paper.
type QuizService struct {
	sessions  session.Repository
	questions question.Repository
	weekly    weekly.Repository
	results   result.Repository
	client    telegram.Client
	diag      Diagnostics
	logger    *logrus.Entry
	webAppURL string

	// shuffle is swappable for deterministic tests.
	shuffle func(qs []question.Question)
}

func NewQuizService(
	sessions session.Repository,
	questions question.Repository,
	weeklyRepo weekly.Repository,
	results result.Repository,
	client telegram.Client,
	diag Diagnostics,
	logger *logrus.Entry,
	webAppURL string,
) *QuizService {
	return &QuizService{
		sessions:  sessions,
		questions: questions,
		weekly:    weeklyRepo,
		results:   results,
		client:    client,
		diag:      diag,
		logger:    logger,
		webAppURL: webAppURL,
		shuffle:   shuffleQuestions,
	}
}

// shuffleQuestions performs a uniform in-place Fisher-Yates shuffle.
func shuffleQuestions(qs []question.Question) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := len(qs) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}

// StartPractice fetches the questions matching the session's chooser
// fields, shuffles them and starts a run of min(requested, available)
// questions. An empty filtered set is a user-visible "no questions"
// outcome, not an error; a reduced count is announced before the quiz.
func (s *QuizService) StartPractice(ctx context.Context, sess *session.Session, chatID int64, requested int) error {
	var (
		available []question.Question
		err       error
	)
	switch sess.Data.PracticeType {
	case session.PracticeLesson:
		available, err = s.questions.ListByLesson(ctx, sess.Data.SubjectID, sess.Data.Lesson)
	case session.PracticeTerm:
		available, err = s.questions.ListByTerm(ctx, sess.Data.SubjectID, sess.Data.Term)
	case session.PracticeExam:
		available, err = s.questions.ListExamTargets(ctx, sess.Data.SubjectID)
	default:
		return fmt.Errorf("practice type not chosen")
	}
	if err != nil {
		return fmt.Errorf("failed to fetch practice questions: %w", err)
	}
	if len(available) == 0 {
		_, sendErr := s.client.SendMessage(chatID, "No questions found for this selection.", nil)
		return sendErr
	}

	serving := requested
	if len(available) < requested {
		serving = len(available)
		notice := fmt.Sprintf("Only %d questions are available for this selection, starting with %d.", serving, serving)
		if _, err := s.client.SendMessage(chatID, notice, nil); err != nil {
			s.diag.Report("quiz.reduced_count_notice", err, nil)
		}
	}

	picked := make([]question.Question, len(available))
	copy(picked, available)
	s.shuffle(picked)
	picked = picked[:serving]

	run := &session.QuizRun{
		ID:           uuid.NewString(),
		Mode:         session.ModePractice,
		Questions:    picked,
		StartedAt:    time.Now(),
		SubjectID:    sess.Data.SubjectID,
		PracticeType: sess.Data.PracticeType,
		Lesson:       sess.Data.Lesson,
		Term:         sess.Data.Term,
	}
	sess.State = session.StateQuizActive
	sess.Data.Quiz = run
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist quiz start: %w", err)
	}

	return s.sendCurrentQuestion(ctx, sess, chatID)
}

// StartWeekly resolves the latest weekly cycle, restricts it to the
// stream's subject set and serves the questions in assignment order, so
// every participant of a stream sees the same deterministic sequence.
func (s *QuizService) StartWeekly(ctx context.Context, sess *session.Session, chatID int64, stream weekly.Stream) error {
	cycleStart, err := s.weekly.LatestCycleStart(ctx)
	if err != nil {
		if errors.Is(err, idb.ErrNoWeeklyCycle) {
			_, sendErr := s.client.SendMessage(chatID, "This week's paper is not available yet. Please check back later.", nil)
			return sendErr
		}
		return fmt.Errorf("failed to resolve weekly cycle: %w", err)
	}

	assignments, err := s.weekly.ListByCycleAndSubjects(ctx, cycleStart, stream.Subjects())
	if err != nil {
		return fmt.Errorf("failed to list weekly assignments: %w", err)
	}
	if len(assignments) == 0 {
		_, sendErr := s.client.SendMessage(chatID, "No questions are scheduled for your stream this week.", nil)
		return sendErr
	}

	ids := make([]int64, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.QuestionID)
	}
	fetched, err := s.questions.ListByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to fetch weekly questions: %w", err)
	}

	// Re-join into assignment order, not arrival order.
	byID := make(map[int64]question.Question, len(fetched))
	for _, q := range fetched {
		byID[q.ID] = q
	}
	ordered := make([]question.Question, 0, len(assignments))
	for _, a := range assignments {
		if q, ok := byID[a.QuestionID]; ok {
			ordered = append(ordered, q)
		}
	}
	if len(ordered) == 0 {
		_, sendErr := s.client.SendMessage(chatID, "No questions are scheduled for your stream this week.", nil)
		return sendErr
	}

	run := &session.QuizRun{
		ID:         uuid.NewString(),
		Mode:       session.ModeWeekly,
		Questions:  ordered,
		StartedAt:  time.Now(),
		CycleStart: cycleStart,
		Stream:     string(stream),
	}
	sess.State = session.StateQuizActive
	sess.Data.Quiz = run
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist weekly quiz start: %w", err)
	}

	return s.sendCurrentQuestion(ctx, sess, chatID)
}

func (s *QuizService) sendCurrentQuestion(ctx context.Context, sess *session.Session, chatID int64) error {
	run := sess.Data.Quiz
	q := run.Current()

	var header string
	if run.Mode == session.ModeWeekly {
		header = fmt.Sprintf("*Q%d/%d - Weekly Paper (%s)*", run.CurrentIndex+1, len(run.Questions), subjectLabel(q.SubjectID))
	} else {
		header = fmt.Sprintf("*Q%d/%d - %s*", run.CurrentIndex+1, len(run.Questions), subjectLabel(run.SubjectID))
	}
	text := fmt.Sprintf("%s\n\n%s\n\nA) %s\nB) %s\nC) %s\nD) %s",
		header, q.Prompt, q.Answer1, q.Answer2, q.Answer3, q.Answer4)

	markup := buildMarkup([][]MenuButton{
		{{Label: "A", Token: "quiz_answer", Arg: "1"}, {Label: "B", Token: "quiz_answer", Arg: "2"}},
		{{Label: "C", Token: "quiz_answer", Arg: "3"}, {Label: "D", Token: "quiz_answer", Arg: "4"}},
		{{Label: "🏳️ Give Up", Token: "quiz_giveup"}},
	})
	ref, err := s.client.SendMessage(chatID, text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown, ReplyMarkup: markup})
	if err != nil {
		return fmt.Errorf("failed to send question: %w", err)
	}

	run.QuestionRef = &ref
	run.Awaiting = false
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist served question: %w", err)
	}
	return nil
}

// SubmitAnswer scores a tapped option. Taps outside an active run, on a
// message other than the currently served question, or while the run
// already awaits "Next" are stale and silently dropped; the first
// write for a question wins.
func (s *QuizService) SubmitAnswer(ctx context.Context, sess *session.Session, chatID int64, messageID int, chosen int) error {
	run := sess.Data.Quiz
	if sess.State != session.StateQuizActive || run == nil || run.Finished() {
		return nil
	}
	if run.Awaiting || run.QuestionRef == nil || run.QuestionRef.MessageID != messageID {
		return nil
	}

	q := run.Current()
	isCorrect := chosen == q.Correct
	if isCorrect {
		run.Score++
	}
	run.Answers = append(run.Answers, session.AnswerRecord{
		QuestionID: q.ID,
		Chosen:     &chosen,
		Correct:    q.Correct,
		IsCorrect:  isCorrect,
	})

	s.revealAnswer(sess, q, &chosen)

	if len(run.Answers) >= len(run.Questions) {
		run.CurrentIndex = len(run.Questions)
		return s.finish(ctx, sess, chatID)
	}

	run.Awaiting = true
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist answer: %w", err)
	}

	markup := buildMarkup([][]MenuButton{{{Label: "➡️ Next Question", Token: "quiz_next"}}})
	_, err := s.client.SendMessage(chatID, `Tap "Next Question" to continue.`, &telebot.SendOptions{ReplyMarkup: markup})
	return err
}

// Next serves the following question. Only valid while the previous
// answer has been resolved and the run is still active.
func (s *QuizService) Next(ctx context.Context, sess *session.Session, chatID int64) error {
	run := sess.Data.Quiz
	if sess.State != session.StateQuizActive || run == nil || !run.Awaiting || run.Finished() {
		return nil
	}
	run.CurrentIndex++
	run.Awaiting = false
	return s.sendCurrentQuestion(ctx, sess, chatID)
}

// GiveUp resolves the current question with no chosen option and ends
// the run early.
func (s *QuizService) GiveUp(ctx context.Context, sess *session.Session, chatID int64) error {
	run := sess.Data.Quiz
	if sess.State != session.StateQuizActive || run == nil || run.Finished() {
		return nil
	}

	if !run.Awaiting {
		q := run.Current()
		run.Answers = append(run.Answers, session.AnswerRecord{
			QuestionID: q.ID,
			Chosen:     nil,
			Correct:    q.Correct,
			IsCorrect:  false,
		})
		s.revealAnswer(sess, q, nil)
	}
	run.GaveUp = true
	run.CurrentIndex = len(run.Answers)
	return s.finish(ctx, sess, chatID)
}

// revealAnswer edits the served question message into its resolution,
// removing the answer keyboard. Best-effort: a failed edit never blocks
// the run.
func (s *QuizService) revealAnswer(sess *session.Session, q question.Question, chosen *int) {
	run := sess.Data.Quiz
	if run.QuestionRef == nil {
		return
	}

	yours := "—"
	if chosen != nil {
		yours = answerLabel(*chosen)
	}
	text := fmt.Sprintf("*Q%d:* %s\n\n✅ Correct answer: *%s*\n📝 Your answer: *%s*",
		run.CurrentIndex+1, q.Prompt, answerLabel(q.Correct), yours)
	if q.Explanation != "" {
		text += fmt.Sprintf("\n\n*Explanation:* %s", q.Explanation)
	}

	if err := s.client.EditMessage(*run.QuestionRef, text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown}); err != nil {
		s.diag.Report("quiz.reveal", err, map[string]interface{}{"question_id": q.ID})
	}
}

func (s *QuizService) finish(ctx context.Context, sess *session.Session, chatID int64) error {
	run := sess.Data.Quiz
	sess.State = session.StateQuizFinished
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist quiz finish: %w", err)
	}

	var title string
	if run.Mode == session.ModeWeekly {
		title = "🏆 *Weekly paper finished*"
	} else {
		title = "📊 *Practice session finished*"
	}
	text := fmt.Sprintf("%s\n\nScore: *%d/%d*\n", title, run.Score, len(run.Questions))
	if run.GaveUp {
		text += "_You ended the quiz early._\n"
	}

	rows := [][]MenuButton{
		{{Label: "📄 Export Review", Token: "quiz_export"}},
		{{Label: "📈 Open Web App (PDF & Analytics)", WebApp: s.webAppURL}},
		{{Label: "🏠 Main Menu", Token: "goto_main_menu"}},
	}
	markup := buildMarkup(rows)
	if _, err := s.client.SendMessage(chatID, text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown, ReplyMarkup: markup}); err != nil {
		return fmt.Errorf("failed to send result summary: %w", err)
	}

	// Result persistence is a secondary effect: the user already has
	// their score, so failures are reported and swallowed.
	s.persistResult(ctx, sess)
	return nil
}

func (s *QuizService) persistResult(ctx context.Context, sess *session.Session) {
	run := sess.Data.Quiz
	now := time.Now()

	switch run.Mode {
	case session.ModePractice:
		pr := &result.PracticeResult{
			RunID:         run.ID,
			StudentID:     sess.Data.StudentID,
			TelegramID:    sess.TelegramID,
			SubjectID:     run.SubjectID,
			PracticeType:  string(run.PracticeType),
			Term:          run.Term,
			QuestionCount: len(run.Questions),
			CorrectCount:  run.Score,
			StartedAt:     run.StartedAt,
			FinishedAt:    now,
		}
		if run.PracticeType == session.PracticeLesson {
			lesson := run.Lesson
			pr.Lesson = &lesson
		}
		if err := s.results.SavePractice(ctx, pr); err != nil {
			s.diag.Report("quiz.save_practice_result", err, map[string]interface{}{"run_id": run.ID})
		}
	case session.ModeWeekly:
		wr := &result.WeeklyResult{
			RunID:      run.ID,
			StudentID:  sess.Data.StudentID,
			TelegramID: sess.TelegramID,
			CycleStart: run.CycleStart,
			Stream:     run.Stream,
			Score:      run.Score,
			Total:      len(run.Questions),
			FinishedAt: now,
		}
		if err := s.results.SaveWeekly(ctx, wr); err != nil {
			s.diag.Report("quiz.save_weekly_result", err, map[string]interface{}{"run_id": run.ID})
		}
	}
}

// Export sends the finished run's review sheet as a document. The run
// is retained in the session after finishing exactly for this.
func (s *QuizService) Export(ctx context.Context, sess *session.Session, chatID int64) error {
	run := sess.Data.Quiz
	if sess.State != session.StateQuizFinished || run == nil {
		return nil
	}
	doc := BuildReviewDocument(run)
	filename := fmt.Sprintf("quiz-review-%s.txt", run.ID)
	if err := s.client.SendDocument(chatID, filename, []byte(doc)); err != nil {
		s.diag.Report("quiz.export", err, map[string]interface{}{"run_id": run.ID})
		_, sendErr := s.client.SendMessage(chatID, "Could not export the review right now. Please try again later.", nil)
		return sendErr
	}
	return nil
}
