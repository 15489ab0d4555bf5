package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores and
// services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// General errors. The groups every caller classifies against: absence,
// rejected input, recoverable per-move parse skips, and optimistic-lock
// conflicts.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrParseSkip    = errors.New("annotation does not match the expected grammar")
)

// User errors
var (
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
)

// Puzzle errors
var (
	ErrPuzzleNotFound = fmt.Errorf("puzzle %w", ErrNotFound)
	ErrNoPuzzles      = fmt.Errorf("%w: no puzzles match the current filters", ErrNotFound)
)

// Attempt session errors. Both classify as invalid input: the check was
// rejected before any state changed.
var (
	ErrNoActiveSession  = fmt.Errorf("%w: no active attempt session for this puzzle", ErrInvalidInput)
	ErrSessionExhausted = fmt.Errorf("%w: attempt budget exhausted for this puzzle", ErrInvalidInput)
)

// Import errors
var (
	ErrImportInProgress = errors.New("an import is already in progress for this user")
)
