package session

import (
	"time"

	"mcq_practice_bot/internal/domain/question"
	"mcq_practice_bot/internal/domain/telegram"
)

// State identifies the step of the conversation a user is in. It is
// persisted with the session and consulted on every inbound update.
type State string

const (
	StateIdle             State = "IDLE"
	StateChoosingSubject  State = "CHOOSING_SUBJECT"
	StateChoosingType     State = "CHOOSING_TYPE"
	StateChoosingQCount   State = "CHOOSING_QCOUNT"
	StateQuizActive       State = "QUIZ_ACTIVE"
	StateQuizFinished     State = "QUIZ_FINISHED"
	StateWeeklyMenu       State = "WEEKLY_MENU"
	StateWeeklyStream     State = "WEEKLY_STREAM"
	StateBroadcastContent State = "BROADCAST_AWAITING_CONTENT"
	StateBroadcastButtons State = "BROADCAST_AWAITING_BUTTONS"
	StateBroadcastReady   State = "BROADCAST_READY"
)

// PracticeType selects how practice questions are filtered.
type PracticeType string

const (
	PracticeLesson PracticeType = "lesson"
	PracticeExam   PracticeType = "exam"
	PracticeTerm   PracticeType = "term"
)

// QuizMode distinguishes the self-paced practice run from the shared
// weekly paper.
type QuizMode string

const (
	ModePractice QuizMode = "practice"
	ModeWeekly   QuizMode = "weekly"
)

// MenuKind records which kind of single-message menu is currently on
// screen, so a replacement can decide between editing in place and
// sending a fresh message.
type MenuKind string

const (
	MenuNone      MenuKind = ""
	MenuNav       MenuKind = "nav"
	MenuBroadcast MenuKind = "broadcast"
)

// MenuRef tracks the currently displayed menu message.
type MenuRef struct {
	Ref  telegram.MessageRef `json:"ref"`
	Kind MenuKind            `json:"kind"`
}

// AnswerRecord captures the outcome of one served question.
// Chosen is nil when the user gave up before answering.
type AnswerRecord struct {
	QuestionID int64 `json:"question_id"`
	Chosen     *int  `json:"chosen"`
	Correct    int   `json:"correct"`
	IsCorrect  bool  `json:"is_correct"`
}

// QuizRun is the transient state of one quiz, snapshotted into the
// session at start and immutable in its question set for the whole run.
type QuizRun struct {
	ID           string              `json:"id"`
	Mode         QuizMode            `json:"mode"`
	Questions    []question.Question `json:"questions"`
	CurrentIndex int                 `json:"current_index"`
	Score        int                 `json:"score"`
	Answers      []AnswerRecord      `json:"answers"`
	StartedAt    time.Time           `json:"started_at"`
	GaveUp       bool                `json:"gave_up"`

	// Ref of the question message currently awaiting an answer; taps on
	// any other message are stale and dropped (first write wins).
	QuestionRef *telegram.MessageRef `json:"question_ref,omitempty"`
	// Awaiting is true between answering one question and tapping "Next".
	Awaiting bool `json:"awaiting"`

	// Practice filters, kept for result persistence.
	SubjectID    int64        `json:"subject_id"`
	PracticeType PracticeType `json:"practice_type,omitempty"`
	Lesson       int          `json:"lesson,omitempty"`
	Term         string       `json:"term,omitempty"`

	// Weekly scope, kept for result persistence.
	CycleStart time.Time `json:"cycle_start,omitempty"`
	Stream     string    `json:"stream,omitempty"`
}

// Finished reports whether every question of the run has been resolved.
func (r *QuizRun) Finished() bool {
	return r.CurrentIndex >= len(r.Questions)
}

// Current returns the question currently being served.
func (r *QuizRun) Current() question.Question {
	return r.Questions[r.CurrentIndex]
}

// Button is one link button attached to broadcast posts.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// BroadcastJob is the administrator's in-progress mass message,
// accumulated post by post before fan-out.
type BroadcastJob struct {
	ID          string                `json:"id"`
	Posts       []telegram.MessageRef `json:"posts"`
	Buttons     []Button              `json:"buttons"`
	PreviewRefs []telegram.MessageRef `json:"preview_refs"`
	ControlMenu *telegram.MessageRef  `json:"control_menu,omitempty"`
}

// Data is the session payload. One variant group is meaningful at a
// time, selected by Session.State: the navigation fields while choosing
// a practice scope, Quiz while a run is active or just finished,
// Broadcast while an admin is building a mass message.
type Data struct {
	StudentID    int64        `json:"student_id,omitempty"`
	SubjectID    int64        `json:"subject_id,omitempty"`
	PracticeType PracticeType `json:"practice_type,omitempty"`
	Lesson       int          `json:"lesson,omitempty"`
	Term         string       `json:"term,omitempty"`

	Menu      *MenuRef      `json:"menu,omitempty"`
	Quiz      *QuizRun      `json:"quiz,omitempty"`
	Broadcast *BroadcastJob `json:"broadcast,omitempty"`
}

// Session is the per-user interaction state surviving across stateless
// update invocations. Created lazily on first contact, never deleted.
type Session struct {
	TelegramID int64
	State      State
	Data       Data
	UpdatedAt  time.Time
}

// New returns a fresh idle session for a user.
func New(telegramID int64) *Session {
	return &Session{TelegramID: telegramID, State: StateIdle}
}

// ResetNavigation clears the practice-chooser fields when a new
// navigation flow starts.
func (s *Session) ResetNavigation() {
	s.Data.SubjectID = 0
	s.Data.PracticeType = ""
	s.Data.Lesson = 0
	s.Data.Term = ""
}

// ClearQuiz drops the quiz variant.
func (s *Session) ClearQuiz() {
	s.Data.Quiz = nil
}

// ClearBroadcast drops the broadcast variant.
func (s *Session) ClearBroadcast() {
	s.Data.Broadcast = nil
}
