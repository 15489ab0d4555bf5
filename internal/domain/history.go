package domain

import (
	"time"

	"github.com/google/uuid"
)

// History event types.
const (
	HistoryAnswer = "answer"
	HistoryHint   = "hint"
	HistoryImport = "import"
)

// HistoryEvent is one entry in a user's training activity log. Data carries
// an event-specific JSON payload.
type HistoryEvent struct {
	ID        int64
	UserID    uuid.UUID
	Type      string
	Data      string
	CreatedAt time.Time
}
