package domain

import (
	"time"

	"github.com/google/uuid"
)

// Badge represents one awarded achievement. Badge membership is monotone:
// the engine awards badges but never removes them.
type Badge struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Icon        string
	Description string
	AwardedAt   time.Time
}

// NewBadge creates an awarded badge for a user
func NewBadge(userID uuid.UUID, name, icon, description string, awardedAt time.Time) *Badge {
	return &Badge{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Icon:        icon,
		Description: description,
		AwardedAt:   awardedAt,
	}
}
