package database

import (
	"context"
	"database/sql"
	"fmt"

	"mcq_practice_bot/internal/domain/result"
)

type PostgresResultRepository struct {
	db *sql.DB
}

func NewPostgresResultRepository(db *sql.DB) *PostgresResultRepository {
	return &PostgresResultRepository{db: db}
}

func (r *PostgresResultRepository) SavePractice(ctx context.Context, pr *result.PracticeResult) error {
	query := `INSERT INTO practice_sessions
               (run_id, student_id, telegram_id, subject_id, practice_type, lesson, term,
                question_count, correct_count, started_at, finished_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
               RETURNING id`

	var lesson sql.NullInt64
	if pr.Lesson != nil {
		lesson = sql.NullInt64{Int64: int64(*pr.Lesson), Valid: true}
	}
	var term sql.NullString
	if pr.Term != "" {
		term = sql.NullString{String: pr.Term, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		pr.RunID, pr.StudentID, pr.TelegramID, pr.SubjectID, pr.PracticeType, lesson, term,
		pr.QuestionCount, pr.CorrectCount, pr.StartedAt, pr.FinishedAt).Scan(&pr.ID)
	if err != nil {
		return fmt.Errorf("error saving practice result: %w", err)
	}
	return nil
}

func (r *PostgresResultRepository) SaveWeekly(ctx context.Context, wr *result.WeeklyResult) error {
	query := `INSERT INTO weekly_results
               (run_id, student_id, telegram_id, cycle_start, stream, score, total, finished_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		wr.RunID, wr.StudentID, wr.TelegramID, wr.CycleStart, wr.Stream, wr.Score, wr.Total, wr.FinishedAt).Scan(&wr.ID)
	if err != nil {
		return fmt.Errorf("error saving weekly result: %w", err)
	}
	return nil
}
