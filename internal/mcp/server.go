package mcp

import (
	"context"
	"errors"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/domain"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

// Server exposes the puzzle trainer as MCP tools so assistants and editors
// can drive a training session over stdio.
type Server struct {
	mcpServer *server.Server
	trainer   *trainer.Service
	// defaultUser is used when a tool call carries no username.
	defaultUser string
}

// Config contains configuration for the MCP server
type Config struct {
	Trainer     *trainer.Service
	DefaultUser string
}

// NewServer creates a new MCP server over the trainer
func NewServer(cfg Config) *Server {
	s := &Server{
		trainer:     cfg.Trainer,
		defaultUser: cfg.DefaultUser,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "hone",
		Version: "0.1.0",
	}, server.WithInstructions(`
Hone is a chess-puzzle trainer built from the player's own games.

Available tools:
- next_puzzle: Select the next puzzle (position only; the solution stays hidden)
- request_hint: Reveal the origin square of the best move (costs reward)
- check_answer: Judge an attempted move by its engine evaluations
- import_games: Import annotated PGN games as new puzzles
- progress: Show experience, streaks and badges
- update_settings: Change selection filters and attempt limits

Answer checking is evaluation based: provide the engine evaluation of the
position before the move and after the attempted move, both in centipawns
from White's perspective. Any move close to the best line counts as correct.
`))

	s.registerTools()

	return s
}

// registerTools registers all hone MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("next_puzzle").
		Description("Select the next puzzle for the user and put it on the board.").
		Handler(s.handleNextPuzzle)

	s.mcpServer.Tool("request_hint").
		Description("Reveal the origin square of the best move for the current puzzle. Using a hint caps the reward and freezes the answer streak.").
		Handler(s.handleRequestHint)

	s.mcpServer.Tool("check_answer").
		Description("Judge the attempted move by engine evaluations (centipawns, White's perspective).").
		Handler(s.handleCheckAnswer)

	s.mcpServer.Tool("import_games").
		Description("Import annotated PGN games, creating puzzles from the user's mistakes.").
		Handler(s.handleImportGames)

	s.mcpServer.Tool("progress").
		Description("Show the user's experience, streaks, puzzle counts and badges.").
		Handler(s.handleProgress)

	s.mcpServer.Tool("update_settings").
		Description("Change puzzle selection filters and the attempt limit.").
		Handler(s.handleUpdateSettings)
}

// Input/Output types for tools

type NextPuzzleInput struct {
	Username string `json:"username,omitempty" jsonschema:"description=Player username (defaults to the configured user)"`
}

type NextPuzzleOutput struct {
	PuzzleID        string  `json:"puzzle_id,omitempty"`
	FEN             string  `json:"fen,omitempty"`
	SideToMove      string  `json:"side_to_move,omitempty"`
	White           string  `json:"white,omitempty"`
	Black           string  `json:"black,omitempty"`
	Date            string  `json:"date,omitempty"`
	TimeControl     string  `json:"time_control,omitempty"`
	TimeControlType string  `json:"time_control_type,omitempty"`
	Tag             string  `json:"tag,omitempty"`
	PreEval         float64 `json:"pre_eval,omitempty"`
	PostEval        float64 `json:"post_eval,omitempty"`
	MaxAttempts     int     `json:"max_attempts,omitempty"`
	Message         string  `json:"message"`
}

type RequestHintInput struct {
	Username string `json:"username,omitempty" jsonschema:"description=Player username (defaults to the configured user)"`
	PuzzleID string `json:"puzzle_id" jsonschema:"description=Puzzle ID from next_puzzle"`
}

type RequestHintOutput struct {
	FromSquare string `json:"from_square"`
	Message    string `json:"message"`
}

type CheckAnswerInput struct {
	Username  string  `json:"username,omitempty" jsonschema:"description=Player username (defaults to the configured user)"`
	PuzzleID  string  `json:"puzzle_id" jsonschema:"description=Puzzle ID from next_puzzle"`
	InitialCp float64 `json:"initial_cp" jsonschema:"description=Engine evaluation before the move in centipawns from White's perspective"`
	MoveCp    float64 `json:"move_cp" jsonschema:"description=Engine evaluation after the attempted move in centipawns from White's perspective"`
}

type CheckAnswerOutput struct {
	Correct            bool     `json:"correct"`
	AttemptsRemaining  int      `json:"attempts_remaining"`
	MaxAttemptsReached bool     `json:"max_attempts_reached"`
	ExperienceDelta    int      `json:"experience_delta"`
	NewExperienceTotal int      `json:"new_experience_total"`
	NewBadges          []string `json:"new_badges,omitempty"`
	RevealedSolution   string   `json:"revealed_solution,omitempty"`
	RevealedPlayed     string   `json:"revealed_played,omitempty"`
	Message            string   `json:"message"`
}

type ImportGamesInput struct {
	Username string `json:"username,omitempty" jsonschema:"description=Player username (defaults to the configured user)"`
	PGN      string `json:"pgn" jsonschema:"description=Annotated PGN text with evaluation comments"`
	AnySide  *bool  `json:"any_side,omitempty" jsonschema:"description=Keep mistakes by both players instead of only the user's own (default: false)"`
}

type ImportGamesOutput struct {
	Games   int    `json:"games"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Message string `json:"message"`
}

type ProgressInput struct {
	Username string `json:"username,omitempty" jsonschema:"description=Player username (defaults to the configured user)"`
}

type ProgressOutput struct {
	Username           string   `json:"username"`
	XP                 int      `json:"xp"`
	XPToday            int      `json:"xp_today"`
	XPWeek             int      `json:"xp_week"`
	CorrectCount       int      `json:"correct_count"`
	ConsecutiveCorrect int      `json:"consecutive_correct"`
	BestPuzzleStreak   int      `json:"best_puzzle_streak"`
	StreakDays         int      `json:"streak_days"`
	BestStreakDays     int      `json:"best_streak_days"`
	AvailablePuzzles   int      `json:"available_puzzles"`
	TotalPuzzles       int      `json:"total_puzzles"`
	Badges             []string `json:"badges,omitempty"`
}

type UpdateSettingsInput struct {
	Username            string   `json:"username,omitempty" jsonschema:"description=Player username (defaults to the configured user)"`
	Days                *int     `json:"days,omitempty" jsonschema:"description=Only select puzzles created within this many days (0 = unlimited)"`
	PerfTypes           []string `json:"perf_types,omitempty" jsonschema:"description=Accepted time-control buckets: Bullet Blitz Rapid Classical"`
	Tags                []string `json:"tags,omitempty" jsonschema:"description=Accepted severities: Blunder Mistake Inaccuracy Error"`
	MaxPuzzles          *int     `json:"max_puzzles,omitempty" jsonschema:"description=Per-user puzzle cap (0 = unlimited)"`
	MaxAttempts         *int     `json:"max_attempts,omitempty" jsonschema:"description=Incorrect attempts allowed per puzzle (1-3)"`
	CooldownMinutes     *int     `json:"cooldown_minutes,omitempty" jsonschema:"description=Minutes a just-answered puzzle is held out of selection"`
	UseSpacedRepetition *bool    `json:"use_spaced_repetition,omitempty" jsonschema:"description=Weighted spaced selection (true) or uniform random (false)"`
}

type UpdateSettingsOutput struct {
	Days                int      `json:"days"`
	PerfTypes           []string `json:"perf_types"`
	Tags                []string `json:"tags"`
	MaxPuzzles          int      `json:"max_puzzles"`
	MaxAttempts         int      `json:"max_attempts"`
	CooldownMinutes     int      `json:"cooldown_minutes"`
	UseSpacedRepetition bool     `json:"use_spaced_repetition"`
	Message             string   `json:"message"`
}

// resolveUser maps the tool call onto a user record, falling back to the
// configured default username.
func (s *Server) resolveUser(ctx context.Context, username string) (*domain.User, error) {
	if username == "" {
		username = s.defaultUser
	}
	if username == "" {
		return nil, fmt.Errorf("no username given and none configured (run 'hone init' or pass username)")
	}
	return s.trainer.User(ctx, username)
}

// Tool handlers

func (s *Server) handleNextPuzzle(ctx context.Context, input NextPuzzleInput) (NextPuzzleOutput, error) {
	u, err := s.resolveUser(ctx, input.Username)
	if err != nil {
		return NextPuzzleOutput{}, err
	}

	p, err := s.trainer.SelectPuzzle(ctx, u.ID)
	if errors.Is(err, domain.ErrNoPuzzles) {
		return NextPuzzleOutput{
			Message: "No puzzles match the current filters. Import more games or widen the filters with update_settings.",
		}, nil
	}
	if err != nil {
		return NextPuzzleOutput{}, fmt.Errorf("select puzzle: %w", err)
	}

	return NextPuzzleOutput{
		PuzzleID:        p.PuzzleID.String(),
		FEN:             p.FEN,
		SideToMove:      string(p.SideToMove),
		White:           p.White,
		Black:           p.Black,
		Date:            p.Date,
		TimeControl:     p.TimeControl,
		TimeControlType: string(p.TimeControlType),
		Tag:             string(p.Tag),
		PreEval:         p.PreEval,
		PostEval:        p.PostEval,
		MaxAttempts:     p.MaxAttempts,
		Message:         fmt.Sprintf("Find the best move for %s. You have %d attempt(s).", p.SideToMove, p.MaxAttempts),
	}, nil
}

func (s *Server) handleRequestHint(ctx context.Context, input RequestHintInput) (RequestHintOutput, error) {
	u, err := s.resolveUser(ctx, input.Username)
	if err != nil {
		return RequestHintOutput{}, err
	}

	puzzleID, err := uuid.Parse(input.PuzzleID)
	if err != nil {
		return RequestHintOutput{}, fmt.Errorf("invalid puzzle id: %w", err)
	}

	square, err := s.trainer.RequestHint(ctx, u.ID, puzzleID)
	if err != nil {
		return RequestHintOutput{}, fmt.Errorf("request hint: %w", err)
	}

	return RequestHintOutput{
		FromSquare: square,
		Message:    fmt.Sprintf("The best move starts from %s. A hinted answer earns at most 1 XP and does not extend the streak.", square),
	}, nil
}

func (s *Server) handleCheckAnswer(ctx context.Context, input CheckAnswerInput) (CheckAnswerOutput, error) {
	u, err := s.resolveUser(ctx, input.Username)
	if err != nil {
		return CheckAnswerOutput{}, err
	}

	puzzleID, err := uuid.Parse(input.PuzzleID)
	if err != nil {
		return CheckAnswerOutput{}, fmt.Errorf("invalid puzzle id: %w", err)
	}

	res, err := s.trainer.CheckAnswer(ctx, u.ID, puzzleID, input.InitialCp, input.MoveCp)
	if err != nil {
		return CheckAnswerOutput{}, fmt.Errorf("check answer: %w", err)
	}

	out := CheckAnswerOutput{
		Correct:            res.Correct,
		AttemptsRemaining:  res.AttemptsRemaining,
		MaxAttemptsReached: res.MaxAttemptsReached,
		ExperienceDelta:    res.ExperienceDelta,
		NewExperienceTotal: res.NewExperienceTotal,
		RevealedSolution:   res.RevealedSolutionSAN,
		RevealedPlayed:     res.RevealedPlayedSAN,
	}
	for _, b := range res.NewBadges {
		out.NewBadges = append(out.NewBadges, b.Name)
	}

	switch {
	case res.Correct:
		out.Message = fmt.Sprintf("Correct! +%d XP.", res.ExperienceDelta)
	case res.MaxAttemptsReached:
		out.Message = fmt.Sprintf("Out of attempts. The best move was %s.", res.RevealedSolutionSAN)
		if res.RevealedPlayedSAN != "" && res.RevealedPlayedSAN != res.RevealedSolutionSAN {
			out.Message += fmt.Sprintf(" In the game you played %s.", res.RevealedPlayedSAN)
		}
	default:
		out.Message = fmt.Sprintf("Not the best move. %d attempt(s) remaining; the position has been reset.", res.AttemptsRemaining)
	}
	return out, nil
}

func (s *Server) handleImportGames(ctx context.Context, input ImportGamesInput) (ImportGamesOutput, error) {
	u, err := s.resolveUser(ctx, input.Username)
	if err != nil {
		return ImportGamesOutput{}, err
	}

	anySide := false
	if input.AnySide != nil {
		anySide = *input.AnySide
	}

	res, err := s.trainer.ImportAnnotatedGames(ctx, u.ID, trainer.ImportRequest{
		PGN:     input.PGN,
		AnySide: anySide,
	})
	if err != nil {
		return ImportGamesOutput{}, fmt.Errorf("import games: %w", err)
	}

	return ImportGamesOutput{
		Games:   res.Games,
		Created: res.Created,
		Updated: res.Updated,
		Skipped: res.Skipped,
		Message: fmt.Sprintf("Imported %d game(s): %d puzzles created, %d updated, %d moves skipped.", res.Games, res.Created, res.Updated, res.Skipped),
	}, nil
}

func (s *Server) handleProgress(ctx context.Context, input ProgressInput) (ProgressOutput, error) {
	u, err := s.resolveUser(ctx, input.Username)
	if err != nil {
		return ProgressOutput{}, err
	}

	report, err := s.trainer.Progress(ctx, u.ID)
	if err != nil {
		return ProgressOutput{}, fmt.Errorf("load progress: %w", err)
	}

	out := ProgressOutput{
		Username:           report.Username,
		XP:                 report.XP,
		XPToday:            report.XPToday,
		XPWeek:             report.XPWeek,
		CorrectCount:       report.CorrectCount,
		ConsecutiveCorrect: report.ConsecutiveCorrect,
		BestPuzzleStreak:   report.BestPuzzleStreak,
		StreakDays:         report.StreakDays,
		BestStreakDays:     report.BestStreakDays,
		AvailablePuzzles:   report.AvailablePuzzles,
		TotalPuzzles:       report.TotalPuzzles,
	}
	for _, b := range report.Badges {
		out.Badges = append(out.Badges, b.Name)
	}
	return out, nil
}

func (s *Server) handleUpdateSettings(ctx context.Context, input UpdateSettingsInput) (UpdateSettingsOutput, error) {
	u, err := s.resolveUser(ctx, input.Username)
	if err != nil {
		return UpdateSettingsOutput{}, err
	}

	// Start from the stored settings so one call can change one knob.
	settings := u.Settings
	if input.Days != nil {
		settings.Days = *input.Days
	}
	if input.PerfTypes != nil {
		settings.PerfTypes = nil
		for _, pt := range input.PerfTypes {
			parsed, err := domain.ParseTimeControlType(pt)
			if err != nil {
				return UpdateSettingsOutput{}, err
			}
			settings.PerfTypes = append(settings.PerfTypes, parsed)
		}
	}
	if input.Tags != nil {
		settings.Tags = nil
		for _, tag := range input.Tags {
			parsed, err := domain.ParseSeverity(tag)
			if err != nil {
				return UpdateSettingsOutput{}, err
			}
			settings.Tags = append(settings.Tags, parsed)
		}
	}
	if input.MaxPuzzles != nil {
		settings.MaxPuzzles = *input.MaxPuzzles
	}
	if input.MaxAttempts != nil {
		settings.MaxAttempts = *input.MaxAttempts
	}
	if input.CooldownMinutes != nil {
		settings.CooldownMinutes = *input.CooldownMinutes
	}
	if input.UseSpacedRepetition != nil {
		settings.UseSpacedRepetition = *input.UseSpacedRepetition
	}

	updated, err := s.trainer.UpdateSettings(ctx, u.ID, settings)
	if err != nil {
		return UpdateSettingsOutput{}, fmt.Errorf("update settings: %w", err)
	}

	out := UpdateSettingsOutput{
		Days:                updated.Settings.Days,
		MaxPuzzles:          updated.Settings.MaxPuzzles,
		MaxAttempts:         updated.Settings.MaxAttempts,
		CooldownMinutes:     updated.Settings.CooldownMinutes,
		UseSpacedRepetition: updated.Settings.UseSpacedRepetition,
		Message:             "Settings updated.",
	}
	for _, pt := range updated.Settings.PerfTypes {
		out.PerfTypes = append(out.PerfTypes, string(pt))
	}
	for _, tag := range updated.Settings.Tags {
		out.Tags = append(out.Tags, string(tag))
	}
	return out, nil
}

// ServeStdio starts the MCP server on stdio (for editor integration)
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
