package database

import (
	"context"
	"database/sql"
	"fmt"

	"mcq_practice_bot/internal/domain/student"
)

// Custom errors
var ErrStudentNotFound = fmt.Errorf("student not found")

type PostgresStudentRepository struct {
	db *sql.DB
}

func NewPostgresStudentRepository(db *sql.DB) *PostgresStudentRepository {
	return &PostgresStudentRepository{db: db}
}

func (r *PostgresStudentRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*student.Student, error) {
	query := `SELECT id, telegram_id, full_name, stream, grade, created_at
               FROM students WHERE telegram_id = $1`

	s := &student.Student{}
	var fullName, stream, grade sql.NullString
	err := r.db.QueryRowContext(ctx, query, telegramID).Scan(&s.ID, &s.TelegramID, &fullName, &stream, &grade, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("error getting student by Telegram ID: %w", err)
	}
	s.FullName = fullName.String
	s.Stream = stream.String
	s.Grade = grade.String
	return s, nil
}

func (r *PostgresStudentRepository) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT telegram_id FROM students WHERE telegram_id IS NOT NULL`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing student telegram ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning student telegram id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating student telegram ids: %w", err)
	}
	return ids, nil
}
