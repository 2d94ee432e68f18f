package weekly

import (
	"context"
	"time"
)

// Stream is a fixed subject grouping scoping the weekly paper.
type Stream string

const (
	StreamBio   Stream = "bio"
	StreamMaths Stream = "maths"
)

// Subjects returns the fixed subject set of a stream. Both streams
// share Physics (1) and Chemistry (2); bio adds Bio (3), maths adds
// Maths (4). Unknown streams return nil.
func (s Stream) Subjects() []int64 {
	switch s {
	case StreamBio:
		return []int64{1, 2, 3}
	case StreamMaths:
		return []int64{1, 2, 4}
	}
	return nil
}

// Valid reports whether s names a known stream.
func (s Stream) Valid() bool { return len(s.Subjects()) > 0 }

// Assignment schedules one question into a weekly cycle. Position
// fixes the serving order: every participant in a stream sees the same
// sequence.
type Assignment struct {
	ID         int64
	CycleStart time.Time
	SubjectID  int64
	QuestionID int64
	Position   int
}

// Repository reads scheduled weekly assignments.
type Repository interface {
	// LatestCycleStart resolves the most recent cycle by maximum
	// cycle-start date among all assignments.
	LatestCycleStart(ctx context.Context) (time.Time, error)
	// ListByCycleAndSubjects returns the cycle's assignments restricted
	// to the given subjects, ordered by position.
	ListByCycleAndSubjects(ctx context.Context, cycleStart time.Time, subjectIDs []int64) ([]Assignment, error)
}
