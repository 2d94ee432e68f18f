package result

import (
	"context"
	"time"
)

// PracticeResult is the insert-only summary row of a finished practice run.
type PracticeResult struct {
	ID            int64
	RunID         string
	StudentID     int64
	TelegramID    int64
	SubjectID     int64
	PracticeType  string
	Lesson        *int
	Term          string
	QuestionCount int
	CorrectCount  int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// WeeklyResult is the insert-only summary row of a finished weekly paper.
type WeeklyResult struct {
	ID         int64
	RunID      string
	StudentID  int64
	TelegramID int64
	CycleStart time.Time
	Stream     string
	Score      int
	Total      int
	FinishedAt time.Time
}

// Repository persists run summaries. Writes here are a secondary
// effect of a flow whose user-visible part has already completed;
// callers log failures and move on.
type Repository interface {
	SavePractice(ctx context.Context, r *PracticeResult) error
	SaveWeekly(ctx context.Context, r *WeeklyResult) error
}
