package postgres

import (
	"github.com/felixgeelhaar/hone/internal/trainer"
)

// Ensure PostgreSQL stores implement the storage interfaces.
var (
	_ trainer.PuzzleStore  = (*PuzzleStore)(nil)
	_ trainer.UserStore    = (*UserStore)(nil)
	_ trainer.HistoryStore = (*HistoryStore)(nil)
)
