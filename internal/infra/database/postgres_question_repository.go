package database

import (
	"context"
	"database/sql"
	"fmt"

	"mcq_practice_bot/internal/domain/question"

	"github.com/lib/pq"
)

const questionColumns = `id, subject_id, lesson, term, is_exam_target,
               question, answer_1, answer_2, answer_3, answer_4, correct_answer, explanation`

type PostgresQuestionRepository struct {
	db *sql.DB
}

func NewPostgresQuestionRepository(db *sql.DB) *PostgresQuestionRepository {
	return &PostgresQuestionRepository{db: db}
}

func (r *PostgresQuestionRepository) ListByLesson(ctx context.Context, subjectID int64, lesson int) ([]question.Question, error) {
	query := `SELECT ` + questionColumns + `
               FROM practice_questions WHERE subject_id = $1 AND lesson = $2`
	return r.list(ctx, query, subjectID, lesson)
}

func (r *PostgresQuestionRepository) ListByTerm(ctx context.Context, subjectID int64, term string) ([]question.Question, error) {
	query := `SELECT ` + questionColumns + `
               FROM practice_questions WHERE subject_id = $1 AND term = $2`
	return r.list(ctx, query, subjectID, term)
}

func (r *PostgresQuestionRepository) ListExamTargets(ctx context.Context, subjectID int64) ([]question.Question, error) {
	query := `SELECT ` + questionColumns + `
               FROM practice_questions WHERE subject_id = $1 AND is_exam_target = TRUE`
	return r.list(ctx, query, subjectID)
}

func (r *PostgresQuestionRepository) ListByIDs(ctx context.Context, ids []int64) ([]question.Question, error) {
	query := `SELECT ` + questionColumns + `
               FROM practice_questions WHERE id = ANY($1)`
	return r.list(ctx, query, pq.Array(ids))
}

func (r *PostgresQuestionRepository) DistinctLessons(ctx context.Context, subjectID int64) ([]int, error) {
	query := `SELECT DISTINCT lesson FROM practice_questions
               WHERE subject_id = $1 AND lesson IS NOT NULL ORDER BY lesson`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("error listing lessons for subject %d: %w", subjectID, err)
	}
	defer rows.Close()

	lessons := make([]int, 0)
	for rows.Next() {
		var lesson int
		if err := rows.Scan(&lesson); err != nil {
			return nil, fmt.Errorf("error scanning lesson: %w", err)
		}
		lessons = append(lessons, lesson)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lessons: %w", err)
	}
	return lessons, nil
}

func (r *PostgresQuestionRepository) DistinctTerms(ctx context.Context, subjectID int64) ([]string, error) {
	query := `SELECT DISTINCT term FROM practice_questions
               WHERE subject_id = $1 AND term IS NOT NULL ORDER BY term`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("error listing terms for subject %d: %w", subjectID, err)
	}
	defer rows.Close()

	terms := make([]string, 0)
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("error scanning term: %w", err)
		}
		terms = append(terms, term)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating terms: %w", err)
	}
	return terms, nil
}

func (r *PostgresQuestionRepository) list(ctx context.Context, query string, args ...interface{}) ([]question.Question, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing questions: %w", err)
	}
	defer rows.Close()

	questions := make([]question.Question, 0)
	for rows.Next() {
		var q question.Question
		var lesson sql.NullInt64
		var term, explanation sql.NullString
		if err := rows.Scan(&q.ID, &q.SubjectID, &lesson, &term, &q.IsExamTarget,
			&q.Prompt, &q.Answer1, &q.Answer2, &q.Answer3, &q.Answer4, &q.Correct, &explanation); err != nil {
			return nil, fmt.Errorf("error scanning question: %w", err)
		}
		if lesson.Valid {
			l := int(lesson.Int64)
			q.Lesson = &l
		}
		q.Term = term.String
		q.Explanation = explanation.String
		questions = append(questions, q)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}
