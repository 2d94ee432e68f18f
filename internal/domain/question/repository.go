package question

import "context"

// Repository reads the question bank. All methods are filtered reads;
// the bot never writes questions.
type Repository interface {
	ListByLesson(ctx context.Context, subjectID int64, lesson int) ([]Question, error)
	ListByTerm(ctx context.Context, subjectID int64, term string) ([]Question, error)
	ListExamTargets(ctx context.Context, subjectID int64) ([]Question, error)
	ListByIDs(ctx context.Context, ids []int64) ([]Question, error)

	// DistinctLessons and DistinctTerms feed the chooser menus.
	DistinctLessons(ctx context.Context, subjectID int64) ([]int, error)
	DistinctTerms(ctx context.Context, subjectID int64) ([]string, error)
}
