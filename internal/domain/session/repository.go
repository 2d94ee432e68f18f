package session

import "context"

// Repository persists per-user sessions. Get returns a fresh idle
// session when none is stored yet; stale sessions self-heal on the next
// /start, so there is no delete.
type Repository interface {
	Get(ctx context.Context, telegramID int64) (*Session, error)
	Upsert(ctx context.Context, s *Session) error
}
