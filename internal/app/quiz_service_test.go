package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mcq_practice_bot/internal/domain/question"
	"mcq_practice_bot/internal/domain/session"
	"mcq_practice_bot/internal/domain/weekly"
)

func practiceSession(telegramID int64) *session.Session {
	sess := session.New(telegramID)
	sess.State = session.StateChoosingQCount
	sess.Data.SubjectID = 1
	sess.Data.PracticeType = session.PracticeExam
	return sess
}

func TestStartPracticeCapsAtAvailable(t *testing.T) {
	e := newTestEnv(Config{})
	e.questions.questions = examQuestions(7, 1)
	sess := practiceSession(10)

	if err := e.quiz.StartPractice(context.Background(), sess, 10, 10); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}

	run := sess.Data.Quiz
	if run == nil {
		t.Fatal("expected an active quiz run")
	}
	if len(run.Questions) != 7 {
		t.Errorf("run size = %d, want 7", len(run.Questions))
	}
	if sess.State != session.StateQuizActive {
		t.Errorf("state = %s, want %s", sess.State, session.StateQuizActive)
	}

	notice := e.client.messages[0].Text
	if !strings.Contains(notice, "Only 7 questions") {
		t.Errorf("expected reduced-count notice, got %q", notice)
	}
	if _, ok := e.sessions.store[10]; !ok {
		t.Error("session was not persisted")
	}
}

func TestStartPracticeExactCountNoNotice(t *testing.T) {
	e := newTestEnv(Config{})
	e.questions.questions = examQuestions(7, 1)
	sess := practiceSession(10)

	if err := e.quiz.StartPractice(context.Background(), sess, 10, 5); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}

	if got := len(sess.Data.Quiz.Questions); got != 5 {
		t.Errorf("run size = %d, want 5", got)
	}
	// The one and only message is the first question itself.
	if len(e.client.messages) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(e.client.messages))
	}
	if !strings.Contains(e.client.messages[0].Text, "Q1/5") {
		t.Errorf("expected first question, got %q", e.client.messages[0].Text)
	}
}

func TestStartPracticeEmptySelection(t *testing.T) {
	e := newTestEnv(Config{})
	sess := practiceSession(10)

	if err := e.quiz.StartPractice(context.Background(), sess, 10, 10); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}

	if sess.State != session.StateChoosingQCount {
		t.Errorf("state changed to %s on empty selection", sess.State)
	}
	if sess.Data.Quiz != nil {
		t.Error("quiz run created for empty selection")
	}
	if got := e.client.lastMessage().Text; !strings.Contains(got, "No questions found") {
		t.Errorf("expected no-questions message, got %q", got)
	}
}

func TestShuffleIsAPermutation(t *testing.T) {
	original := examQuestions(30, 1)

	shuffled := make([]question.Question, len(original))
	copy(shuffled, original)

	moved := false
	for attempt := 0; attempt < 5 && !moved; attempt++ {
		shuffleQuestions(shuffled)
		for i := range shuffled {
			if shuffled[i].ID != original[i].ID {
				moved = true
				break
			}
		}
	}
	if !moved {
		t.Error("shuffle left 30 questions in input order on 5 attempts")
	}

	seen := make(map[int64]bool, len(shuffled))
	for _, q := range shuffled {
		seen[q.ID] = true
	}
	if len(seen) != len(original) {
		t.Errorf("shuffle lost questions: %d distinct of %d", len(seen), len(original))
	}
}

func weeklyFixture(e *testEnv) time.Time {
	cycle := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	e.weekly.hasCycle = true
	e.weekly.cycleStart = cycle
	e.questions.questions = []question.Question{
		{ID: 1, SubjectID: 1, Prompt: "P?", Answer1: "a", Answer2: "b", Answer3: "c", Answer4: "d", Correct: 1},
		{ID: 2, SubjectID: 2, Prompt: "C?", Answer1: "a", Answer2: "b", Answer3: "c", Answer4: "d", Correct: 2},
		{ID: 3, SubjectID: 3, Prompt: "B?", Answer1: "a", Answer2: "b", Answer3: "c", Answer4: "d", Correct: 3},
		{ID: 4, SubjectID: 4, Prompt: "M?", Answer1: "a", Answer2: "b", Answer3: "c", Answer4: "d", Correct: 4},
	}
	e.weekly.assignments = []weekly.Assignment{
		{ID: 11, CycleStart: cycle, SubjectID: 3, QuestionID: 3, Position: 1},
		{ID: 12, CycleStart: cycle, SubjectID: 1, QuestionID: 1, Position: 2},
		{ID: 13, CycleStart: cycle, SubjectID: 4, QuestionID: 4, Position: 3},
		{ID: 14, CycleStart: cycle, SubjectID: 2, QuestionID: 2, Position: 4},
	}
	return cycle
}

func TestStartWeeklyOrderIsDeterministic(t *testing.T) {
	e := newTestEnv(Config{})
	weeklyFixture(e)

	order := func(telegramID int64) []int64 {
		sess := session.New(telegramID)
		sess.State = session.StateWeeklyStream
		if err := e.quiz.StartWeekly(context.Background(), sess, telegramID, weekly.StreamBio); err != nil {
			t.Fatalf("StartWeekly: %v", err)
		}
		var ids []int64
		for _, q := range sess.Data.Quiz.Questions {
			ids = append(ids, q.ID)
		}
		return ids
	}

	first := order(10)
	second := order(11)

	// Assignment order, not the repository's arrival order; the maths
	// question (subject 4) is excluded from the bio stream.
	want := []int64{3, 1, 2}
	for _, got := range [][]int64{first, second} {
		if len(got) != len(want) {
			t.Fatalf("question ids = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("question ids = %v, want %v", got, want)
			}
		}
	}
}

func TestStartWeeklyMathsStream(t *testing.T) {
	e := newTestEnv(Config{})
	weeklyFixture(e)

	sess := session.New(10)
	sess.State = session.StateWeeklyStream
	if err := e.quiz.StartWeekly(context.Background(), sess, 10, weekly.StreamMaths); err != nil {
		t.Fatalf("StartWeekly: %v", err)
	}

	want := []int64{1, 4, 2}
	run := sess.Data.Quiz
	if len(run.Questions) != len(want) {
		t.Fatalf("got %d questions, want %d", len(run.Questions), len(want))
	}
	for i, id := range want {
		if run.Questions[i].ID != id {
			t.Errorf("position %d: question %d, want %d", i, run.Questions[i].ID, id)
		}
	}
	if run.Mode != session.ModeWeekly {
		t.Errorf("mode = %s, want %s", run.Mode, session.ModeWeekly)
	}
}

func TestStartWeeklyNoCycle(t *testing.T) {
	e := newTestEnv(Config{})
	sess := session.New(10)
	sess.State = session.StateWeeklyStream

	if err := e.quiz.StartWeekly(context.Background(), sess, 10, weekly.StreamBio); err != nil {
		t.Fatalf("StartWeekly: %v", err)
	}

	if sess.State != session.StateWeeklyStream {
		t.Errorf("state changed to %s with no cycle", sess.State)
	}
	if got := e.client.lastMessage().Text; !strings.Contains(got, "not available yet") {
		t.Errorf("expected not-available message, got %q", got)
	}
}

func TestAnswerFlowScoringAndStaleTaps(t *testing.T) {
	e := newTestEnv(Config{})
	e.questions.questions = examQuestions(3, 1)
	sess := practiceSession(10)
	ctx := context.Background()

	if err := e.quiz.StartPractice(ctx, sess, 10, 3); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}
	run := sess.Data.Quiz
	servedID := run.QuestionRef.MessageID

	// A tap on any message other than the served question is stale.
	if err := e.quiz.SubmitAnswer(ctx, sess, 10, servedID+100, 1); err != nil {
		t.Fatalf("SubmitAnswer stale: %v", err)
	}
	if len(run.Answers) != 0 {
		t.Fatal("stale tap was scored")
	}

	// Correct answer to question 1 (correct option is 2).
	if err := e.quiz.SubmitAnswer(ctx, sess, 10, servedID, 2); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if run.Score != 1 || len(run.Answers) != 1 {
		t.Fatalf("score=%d answers=%d after first correct answer", run.Score, len(run.Answers))
	}
	if !run.Awaiting {
		t.Fatal("run not awaiting Next after an answer")
	}
	if len(e.client.edits) == 0 {
		t.Error("question message was not edited into its resolution")
	}

	// A second tap on the same question loses: first write wins.
	if err := e.quiz.SubmitAnswer(ctx, sess, 10, servedID, 3); err != nil {
		t.Fatalf("SubmitAnswer double tap: %v", err)
	}
	if run.Score != 1 || len(run.Answers) != 1 {
		t.Fatalf("double tap changed the outcome: score=%d answers=%d", run.Score, len(run.Answers))
	}

	if err := e.quiz.Next(ctx, sess, 10); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if run.CurrentIndex != 1 || len(run.Answers) != run.CurrentIndex {
		t.Fatalf("index=%d answers=%d after Next", run.CurrentIndex, len(run.Answers))
	}

	// Wrong answer to question 2 (correct option is 3).
	if err := e.quiz.SubmitAnswer(ctx, sess, 10, run.QuestionRef.MessageID, 1); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if run.Score != 1 || len(run.Answers) != 2 {
		t.Fatalf("score=%d answers=%d after wrong answer", run.Score, len(run.Answers))
	}

	if err := e.quiz.Next(ctx, sess, 10); err != nil {
		t.Fatalf("Next: %v", err)
	}
	// Correct answer to the last question (correct option is 4) ends the run.
	if err := e.quiz.SubmitAnswer(ctx, sess, 10, run.QuestionRef.MessageID, 4); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	if sess.State != session.StateQuizFinished {
		t.Errorf("state = %s, want %s", sess.State, session.StateQuizFinished)
	}
	if !run.Finished() {
		t.Error("run not marked finished")
	}
	if got := e.client.lastMessage().Text; !strings.Contains(got, "2/3") {
		t.Errorf("summary %q does not show the final score", got)
	}

	if len(e.results.practice) != 1 {
		t.Fatalf("practice results saved = %d, want 1", len(e.results.practice))
	}
	saved := e.results.practice[0]
	if saved.CorrectCount != 2 || saved.QuestionCount != 3 {
		t.Errorf("saved result %d/%d, want 2/3", saved.CorrectCount, saved.QuestionCount)
	}
	if saved.RunID != run.ID || saved.TelegramID != 10 {
		t.Errorf("saved result identity mismatch: %+v", saved)
	}
}

func TestSubmitAnswerIgnoredOutsideQuiz(t *testing.T) {
	e := newTestEnv(Config{})
	sess := session.New(10)

	if err := e.quiz.SubmitAnswer(context.Background(), sess, 10, 1, 1); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if len(e.client.messages) != 0 || sess.State != session.StateIdle {
		t.Error("answer outside a quiz had visible effects")
	}
}

func TestGiveUpEndsRunEarly(t *testing.T) {
	e := newTestEnv(Config{})
	e.questions.questions = examQuestions(3, 1)
	sess := practiceSession(10)
	ctx := context.Background()

	if err := e.quiz.StartPractice(ctx, sess, 10, 3); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}
	run := sess.Data.Quiz

	if err := e.quiz.SubmitAnswer(ctx, sess, 10, run.QuestionRef.MessageID, 2); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if err := e.quiz.Next(ctx, sess, 10); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := e.quiz.GiveUp(ctx, sess, 10); err != nil {
		t.Fatalf("GiveUp: %v", err)
	}

	if sess.State != session.StateQuizFinished || !run.GaveUp {
		t.Errorf("state=%s gaveUp=%v after give-up", sess.State, run.GaveUp)
	}
	if len(run.Answers) != 2 {
		t.Fatalf("answers = %d, want 2 (answered + surrendered)", len(run.Answers))
	}
	if run.Answers[1].Chosen != nil {
		t.Error("surrendered question recorded a chosen option")
	}
	if got := e.client.lastMessage().Text; !strings.Contains(got, "ended the quiz early") {
		t.Errorf("summary %q does not mention ending early", got)
	}
	if len(e.results.practice) != 1 || e.results.practice[0].CorrectCount != 1 {
		t.Errorf("give-up result not persisted correctly: %+v", e.results.practice)
	}
}

func TestFinishSurvivesResultSaveFailure(t *testing.T) {
	e := newTestEnv(Config{})
	e.questions.questions = examQuestions(1, 1)
	e.results.saveErr = errors.New("insert failed")
	sess := practiceSession(10)
	ctx := context.Background()

	if err := e.quiz.StartPractice(ctx, sess, 10, 1); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}
	if err := e.quiz.SubmitAnswer(ctx, sess, 10, sess.Data.Quiz.QuestionRef.MessageID, 2); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	if sess.State != session.StateQuizFinished {
		t.Errorf("state = %s, want finished despite save failure", sess.State)
	}
	if got := e.client.lastMessage().Text; !strings.Contains(got, "1/1") {
		t.Errorf("user did not receive the summary: %q", got)
	}
}

func TestWeeklyResultPersisted(t *testing.T) {
	e := newTestEnv(Config{})
	cycle := weeklyFixture(e)
	sess := session.New(10)
	sess.State = session.StateWeeklyStream
	ctx := context.Background()

	if err := e.quiz.StartWeekly(ctx, sess, 10, weekly.StreamBio); err != nil {
		t.Fatalf("StartWeekly: %v", err)
	}
	if err := e.quiz.GiveUp(ctx, sess, 10); err != nil {
		t.Fatalf("GiveUp: %v", err)
	}

	if len(e.results.weekly) != 1 {
		t.Fatalf("weekly results saved = %d, want 1", len(e.results.weekly))
	}
	saved := e.results.weekly[0]
	if saved.Stream != string(weekly.StreamBio) || !saved.CycleStart.Equal(cycle) {
		t.Errorf("saved weekly result scope mismatch: %+v", saved)
	}
	if saved.Total != 3 {
		t.Errorf("saved total = %d, want 3", saved.Total)
	}
}

func TestExportSendsReviewDocument(t *testing.T) {
	e := newTestEnv(Config{})
	e.questions.questions = examQuestions(1, 1)
	sess := practiceSession(10)
	ctx := context.Background()

	// Export before a run has finished is a no-op.
	if err := e.quiz.Export(ctx, sess, 10); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(e.client.documents) != 0 {
		t.Fatal("export produced a document without a finished run")
	}

	if err := e.quiz.StartPractice(ctx, sess, 10, 1); err != nil {
		t.Fatalf("StartPractice: %v", err)
	}
	if err := e.quiz.SubmitAnswer(ctx, sess, 10, sess.Data.Quiz.QuestionRef.MessageID, 2); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if err := e.quiz.Export(ctx, sess, 10); err != nil {
		t.Fatalf("Export: %v", err)
	}

	if len(e.client.documents) != 1 {
		t.Fatalf("documents sent = %d, want 1", len(e.client.documents))
	}
	doc := e.client.documents[0]
	if !strings.Contains(doc.Filename, sess.Data.Quiz.ID) {
		t.Errorf("filename %q does not carry the run id", doc.Filename)
	}
	if !strings.Contains(string(doc.Data), "Question 1?") {
		t.Error("review document does not contain the question prompt")
	}
}

func TestAnswerLabel(t *testing.T) {
	cases := []struct {
		idx  int
		want string
	}{
		{1, "A"},
		{2, "B"},
		{3, "C"},
		{4, "D"},
		{0, "?"},
		{5, "?"},
		{-1, "?"},
	}
	for _, tc := range cases {
		if got := answerLabel(tc.idx); got != tc.want {
			t.Errorf("answerLabel(%d) = %q, want %q", tc.idx, got, tc.want)
		}
	}
}
