package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mcq_practice_bot/internal/domain/weekly"

	"github.com/lib/pq"
)

// Custom errors
var ErrNoWeeklyCycle = fmt.Errorf("no weekly cycle scheduled")

type PostgresWeeklyRepository struct {
	db *sql.DB
}

func NewPostgresWeeklyRepository(db *sql.DB) *PostgresWeeklyRepository {
	return &PostgresWeeklyRepository{db: db}
}

func (r *PostgresWeeklyRepository) LatestCycleStart(ctx context.Context) (time.Time, error) {
	query := `SELECT MAX(cycle_start) FROM weekly_questions`

	var cycleStart sql.NullTime
	err := r.db.QueryRowContext(ctx, query).Scan(&cycleStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("error resolving latest weekly cycle: %w", err)
	}
	if !cycleStart.Valid {
		return time.Time{}, ErrNoWeeklyCycle
	}
	return cycleStart.Time, nil
}

func (r *PostgresWeeklyRepository) ListByCycleAndSubjects(ctx context.Context, cycleStart time.Time, subjectIDs []int64) ([]weekly.Assignment, error) {
	query := `SELECT id, cycle_start, subject_id, question_id, position
               FROM weekly_questions
               WHERE cycle_start = $1 AND subject_id = ANY($2)
               ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, cycleStart, pq.Array(subjectIDs))
	if err != nil {
		return nil, fmt.Errorf("error listing weekly assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]weekly.Assignment, 0)
	for rows.Next() {
		var a weekly.Assignment
		if err := rows.Scan(&a.ID, &a.CycleStart, &a.SubjectID, &a.QuestionID, &a.Position); err != nil {
			return nil, fmt.Errorf("error scanning weekly assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weekly assignments: %w", err)
	}
	return assignments, nil
}
