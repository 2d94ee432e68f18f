package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"mcq_practice_bot/internal/domain/session"
)

// PostgresSessionRepository stores sessions in bot_sessions with the
// payload serialized to a JSONB column. A missing row yields a fresh
// idle session; sessions are never deleted.
type PostgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Get(ctx context.Context, telegramID int64) (*session.Session, error) {
	query := `SELECT telegram_id, state, data, updated_at
               FROM bot_sessions WHERE telegram_id = $1`

	s := &session.Session{}
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, telegramID).Scan(&s.TelegramID, &s.State, &raw, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return session.New(telegramID), nil
		}
		return nil, fmt.Errorf("error getting session for telegram id %d: %w", telegramID, err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.Data); err != nil {
			// A corrupt payload must not lock the user out; start over.
			return session.New(telegramID), nil
		}
	}
	return s, nil
}

func (r *PostgresSessionRepository) Upsert(ctx context.Context, s *session.Session) error {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("error marshaling session data: %w", err)
	}

	query := `INSERT INTO bot_sessions (telegram_id, state, data, updated_at)
               VALUES ($1, $2, $3, NOW())
               ON CONFLICT (telegram_id)
               DO UPDATE SET state = EXCLUDED.state, data = EXCLUDED.data, updated_at = NOW()
               RETURNING updated_at`

	err = r.db.QueryRowContext(ctx, query, s.TelegramID, s.State, raw).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting session for telegram id %d: %w", s.TelegramID, err)
	}
	return nil
}
