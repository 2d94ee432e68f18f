package student

import (
	"context"
	"time"
)

// Student is a registration record created by the external web form.
// The bot only reads these; registration itself is out of scope.
type Student struct {
	ID         int64
	TelegramID int64
	FullName   string
	Stream     string
	Grade      string
	CreatedAt  time.Time
}

// Repository reads registered students.
type Repository interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*Student, error)
	// ListTelegramIDs returns the distinct telegram ids of every
	// registered student, the broadcast recipient universe.
	ListTelegramIDs(ctx context.Context) ([]int64, error)
}
