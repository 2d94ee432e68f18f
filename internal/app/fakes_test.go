package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"mcq_practice_bot/internal/domain/question"
	"mcq_practice_bot/internal/domain/result"
	"mcq_practice_bot/internal/domain/session"
	"mcq_practice_bot/internal/domain/student"
	"mcq_practice_bot/internal/domain/telegram"
	"mcq_practice_bot/internal/domain/weekly"
	idb "mcq_practice_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testDiag() *LogrusDiagnostics {
	return &LogrusDiagnostics{Entry: testLogger()}
}

// --- session repository ---

type fakeSessions struct {
	store      map[int64]*session.Session
	upsertErr  error
	upsertHits int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{store: make(map[int64]*session.Session)}
}

func (f *fakeSessions) Get(_ context.Context, telegramID int64) (*session.Session, error) {
	if s, ok := f.store[telegramID]; ok {
		return s, nil
	}
	return session.New(telegramID), nil
}

func (f *fakeSessions) Upsert(_ context.Context, s *session.Session) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upsertHits++
	f.store[s.TelegramID] = s
	return nil
}

// --- student repository ---

type fakeStudents struct {
	byTelegramID map[int64]*student.Student
	recipientIDs []int64
	listErr      error
}

func newFakeStudents() *fakeStudents {
	return &fakeStudents{byTelegramID: make(map[int64]*student.Student)}
}

func (f *fakeStudents) GetByTelegramID(_ context.Context, telegramID int64) (*student.Student, error) {
	if s, ok := f.byTelegramID[telegramID]; ok {
		return s, nil
	}
	return nil, idb.ErrStudentNotFound
}

func (f *fakeStudents) ListTelegramIDs(_ context.Context) ([]int64, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.recipientIDs, nil
}

// --- question repository ---

type fakeQuestions struct {
	questions []question.Question
}

func (f *fakeQuestions) ListByLesson(_ context.Context, subjectID int64, lesson int) ([]question.Question, error) {
	var out []question.Question
	for _, q := range f.questions {
		if q.SubjectID == subjectID && q.Lesson != nil && *q.Lesson == lesson {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQuestions) ListByTerm(_ context.Context, subjectID int64, term string) ([]question.Question, error) {
	var out []question.Question
	for _, q := range f.questions {
		if q.SubjectID == subjectID && q.Term == term {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQuestions) ListExamTargets(_ context.Context, subjectID int64) ([]question.Question, error) {
	var out []question.Question
	for _, q := range f.questions {
		if q.SubjectID == subjectID && q.IsExamTarget {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQuestions) ListByIDs(_ context.Context, ids []int64) ([]question.Question, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	// Deliberately return in reverse storage order: callers must
	// re-join into their own order, not rely on arrival order.
	var out []question.Question
	for i := len(f.questions) - 1; i >= 0; i-- {
		if want[f.questions[i].ID] {
			out = append(out, f.questions[i])
		}
	}
	return out, nil
}

func (f *fakeQuestions) DistinctLessons(_ context.Context, subjectID int64) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, q := range f.questions {
		if q.SubjectID == subjectID && q.Lesson != nil && !seen[*q.Lesson] {
			seen[*q.Lesson] = true
			out = append(out, *q.Lesson)
		}
	}
	return out, nil
}

func (f *fakeQuestions) DistinctTerms(_ context.Context, subjectID int64) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, q := range f.questions {
		if q.SubjectID == subjectID && q.Term != "" && !seen[q.Term] {
			seen[q.Term] = true
			out = append(out, q.Term)
		}
	}
	return out, nil
}

// --- weekly repository ---

type fakeWeekly struct {
	cycleStart  time.Time
	hasCycle    bool
	assignments []weekly.Assignment
}

func (f *fakeWeekly) LatestCycleStart(_ context.Context) (time.Time, error) {
	if !f.hasCycle {
		return time.Time{}, idb.ErrNoWeeklyCycle
	}
	return f.cycleStart, nil
}

func (f *fakeWeekly) ListByCycleAndSubjects(_ context.Context, cycleStart time.Time, subjectIDs []int64) ([]weekly.Assignment, error) {
	allowed := make(map[int64]bool, len(subjectIDs))
	for _, id := range subjectIDs {
		allowed[id] = true
	}
	var out []weekly.Assignment
	for _, a := range f.assignments {
		if a.CycleStart.Equal(cycleStart) && allowed[a.SubjectID] {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- result repository ---

type fakeResults struct {
	practice []*result.PracticeResult
	weekly   []*result.WeeklyResult
	saveErr  error
}

func (f *fakeResults) SavePractice(_ context.Context, r *result.PracticeResult) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.practice = append(f.practice, r)
	return nil
}

func (f *fakeResults) SaveWeekly(_ context.Context, r *result.WeeklyResult) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.weekly = append(f.weekly, r)
	return nil
}

// --- telegram client ---

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   *telebot.SendOptions
}

type editCall struct {
	Ref  telegram.MessageRef
	Text string
}

type copyCall struct {
	To     int64
	From   telegram.MessageRef
	Markup *telebot.ReplyMarkup
}

type docCall struct {
	ChatID   int64
	Filename string
	Data     []byte
}

type fakeClient struct {
	nextMessageID int
	messages      []sentMessage
	edits         []editCall
	markupEdits   []telegram.MessageRef
	deletes       []telegram.MessageRef
	copies        []copyCall
	documents     []docCall

	memberStatus string
	memberErr    error

	failCopyTo map[int64]bool
	editErr    error
	deleteErr  error
}

func newFakeClient() *fakeClient {
	return &fakeClient{memberStatus: "member"}
}

func (f *fakeClient) SendMessage(chatID int64, text string, opts *telebot.SendOptions) (telegram.MessageRef, error) {
	f.nextMessageID++
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return telegram.MessageRef{ChatID: chatID, MessageID: f.nextMessageID}, nil
}

func (f *fakeClient) EditMessage(ref telegram.MessageRef, text string, _ *telebot.SendOptions) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, editCall{Ref: ref, Text: text})
	return nil
}

func (f *fakeClient) EditMessageMarkup(ref telegram.MessageRef, _ *telebot.ReplyMarkup) error {
	f.markupEdits = append(f.markupEdits, ref)
	return nil
}

func (f *fakeClient) DeleteMessage(ref telegram.MessageRef) error {
	f.deletes = append(f.deletes, ref)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return nil
}

func (f *fakeClient) CopyMessage(toChatID int64, from telegram.MessageRef, markup *telebot.ReplyMarkup) (telegram.MessageRef, error) {
	if f.failCopyTo[toChatID] {
		return telegram.MessageRef{}, fmt.Errorf("forbidden: bot was blocked by the user")
	}
	f.nextMessageID++
	f.copies = append(f.copies, copyCall{To: toChatID, From: from, Markup: markup})
	return telegram.MessageRef{ChatID: toChatID, MessageID: f.nextMessageID}, nil
}

func (f *fakeClient) ChatMemberStatus(_ string, _ int64) (string, error) {
	if f.memberErr != nil {
		return "", f.memberErr
	}
	return f.memberStatus, nil
}

func (f *fakeClient) SendDocument(chatID int64, filename string, data []byte) error {
	f.documents = append(f.documents, docCall{ChatID: chatID, Filename: filename, Data: data})
	return nil
}

func (f *fakeClient) lastMessage() sentMessage {
	if len(f.messages) == 0 {
		return sentMessage{}
	}
	return f.messages[len(f.messages)-1]
}

// --- wiring ---

// testEnv wires the services and the dispatcher over in-memory fakes.
// Shuffling and fan-out sleeping are disabled so runs are deterministic
// and fast; individual tests re-enable them as needed.
type testEnv struct {
	sessions  *fakeSessions
	students  *fakeStudents
	questions *fakeQuestions
	weekly    *fakeWeekly
	results   *fakeResults
	client    *fakeClient

	quiz       *QuizService
	broadcast  *BroadcastService
	dispatcher *Dispatcher
}

func newTestEnv(cfg Config) *testEnv {
	e := &testEnv{
		sessions:  newFakeSessions(),
		students:  newFakeStudents(),
		questions: &fakeQuestions{},
		weekly:    &fakeWeekly{},
		results:   &fakeResults{},
		client:    newFakeClient(),
	}

	diag := testDiag()
	e.quiz = NewQuizService(e.sessions, e.questions, e.weekly, e.results, e.client, diag, testLogger(), "https://app.example.com")
	e.quiz.shuffle = func([]question.Question) {}

	e.broadcast = NewBroadcastService(e.sessions, e.students, e.client, diag, testLogger(), 0)
	e.broadcast.sleep = func(time.Duration) {}

	menus := NewMenuRenderer(e.client, diag)
	e.dispatcher = NewDispatcher(cfg, e.sessions, e.students, e.questions, e.quiz, e.broadcast, e.client, menus, testLogger())
	return e
}

func (e *testEnv) register(telegramID, studentID int64, name string) {
	e.students.byTelegramID[telegramID] = &student.Student{
		ID:         studentID,
		TelegramID: telegramID,
		FullName:   name,
	}
}

func examQuestions(n int, subjectID int64) []question.Question {
	qs := make([]question.Question, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, question.Question{
			ID:           int64(i),
			SubjectID:    subjectID,
			IsExamTarget: true,
			Prompt:       fmt.Sprintf("Question %d?", i),
			Answer1:      "option one",
			Answer2:      "option two",
			Answer3:      "option three",
			Answer4:      "option four",
			Correct:      (i % 4) + 1,
		})
	}
	return qs
}
