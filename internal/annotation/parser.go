// Package annotation extracts puzzle candidates from annotated PGN game
// records. Annotations are move comments of the form produced by engine
// analysis, e.g. "(0.32 -> -1.56) Mistake. Nf3 was best." — an evaluation
// pair in pawn units, a severity word, and optionally a suggested best
// continuation.
package annotation

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notnil/chess"

	"github.com/felixgeelhaar/hone/internal/domain"
)

const sanToken = `(?:O-O-O|O-O|[KQRNB]?[a-h]?[1-8]?x?[a-h][1-8](?:=[QRNB])?[+#]?)`

var (
	// evalPair matches "(0.32 -> -1.56)" and the unicode-arrow variant.
	// Mate annotations ("#3") do not match and skip the move.
	evalPair = regexp.MustCompile(`(?i)\(?\s*(?P<pre>[-0-9.]+)\s*(?:->|→)\s*(?P<post>[-0-9.]+)\s*\)?`)

	// suggestPatterns locate the engine's suggested continuation. Tried in
	// order; the first submatch wins.
	suggestPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i:best)\s*[:\-]?\s*(` + sanToken + `)`),
		regexp.MustCompile(`(` + sanToken + `)\s*(?i:was|is)\s*(?i:best)`),
		regexp.MustCompile(`(?i:best move )(?i:was|is)\s*(` + sanToken + `)`),
	}

	firstSAN = regexp.MustCompile(sanToken)
)

// severityWords are checked in order; the first substring hit wins, so a
// comment reading "blunder" never classifies as the weaker "error".
var severityWords = []struct {
	word string
	tag  domain.Severity
}{
	{"blunder", domain.SeverityBlunder},
	{"mistake", domain.SeverityMistake},
	{"inaccuracy", domain.SeverityInaccuracy},
	{"error", domain.SeverityError},
}

// Candidate is one extracted puzzle candidate. The FEN and move index refer
// to the position before the flagged move was played.
type Candidate struct {
	GameID        string
	MoveIndex     int
	FEN           string
	Side          domain.Side
	PlayedSAN     string
	SolutionSAN   string
	PreEval       float64
	PostEval      float64
	Tag           domain.Severity
	InitialWeight float64

	White           string
	Black           string
	Date            string
	TimeControl     string
	TimeControlType domain.TimeControlType
}

// Puzzle converts the candidate into a new puzzle owned by the given user
func (c *Candidate) Puzzle(userID uuid.UUID) *domain.Puzzle {
	now := time.Now()
	return &domain.Puzzle{
		ID:              uuid.New(),
		UserID:          userID,
		GameID:          c.GameID,
		MoveIndex:       c.MoveIndex,
		FEN:             c.FEN,
		Side:            c.Side,
		SolutionSAN:     c.SolutionSAN,
		PlayedSAN:       c.PlayedSAN,
		Weight:          c.InitialWeight,
		EaseFactor:      2.5,
		PreEval:         c.PreEval,
		PostEval:        c.PostEval,
		Tag:             c.Tag,
		White:           c.White,
		Black:           c.Black,
		Date:            c.Date,
		TimeControl:     c.TimeControl,
		TimeControlType: c.TimeControlType,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Report aggregates one parse pass over a PGN stream
type Report struct {
	Candidates []Candidate
	Games      int
	// Skipped counts annotated moves whose comment did not match the
	// expected grammar (eval pair without a severity word, unparseable
	// numbers, and so on). Skips never abort the rest of the parse.
	Skipped int
	// Excluded counts well-formed annotations rejected by the
	// instructiveness rule.
	Excluded int
}

// Parser turns annotated PGN text into puzzle candidates
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseString parses annotated PGN text
func (p *Parser) ParseString(pgn string) (*Report, error) {
	return p.Parse(strings.NewReader(pgn))
}

// Parse reads every game from the PGN stream and extracts candidates.
// Individual malformed comments are counted and skipped; only a broken
// stream surfaces as an error.
func (p *Parser) Parse(r io.Reader) (*Report, error) {
	report := &Report{}
	scanner := chess.NewScanner(r)
	for scanner.Scan() {
		game := scanner.Next()
		if game == nil {
			continue
		}
		report.Games++
		p.parseGame(game, report)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return report, fmt.Errorf("scanning pgn: %w", err)
	}
	return report, nil
}

func (p *Parser) parseGame(game *chess.Game, report *Report) {
	gameID := gameIdentity(game)
	white := tagValue(game, "White")
	black := tagValue(game, "Black")
	date := tagValue(game, "Date")
	timeControl := tagValue(game, "TimeControl")
	tcType := domain.ClassifyTimeControl(timeControl)

	moves := game.Moves()
	positions := game.Positions()
	comments := game.Comments()

	for i, move := range moves {
		if i >= len(comments) || i+1 >= len(positions) {
			break
		}
		comment := strings.Join(comments[i], " ")
		if comment == "" {
			continue
		}

		parts, err := parseAnnotation(comment)
		if err != nil {
			report.Skipped++
			p.logger.Debug("skipping annotation",
				"game_id", gameID,
				"move", i+1,
				"error", err)
			continue
		}
		if parts == nil {
			// Plain commentary, not an engine annotation.
			continue
		}

		pre, post, tag := parts.pre, parts.post, parts.tag
		if !instructive(pre, post) {
			report.Excluded++
			continue
		}

		before := positions[i]
		playedSAN := chess.AlgebraicNotation{}.Encode(before, move)
		solution := suggestedSAN(comment)
		if solution == "" {
			solution = playedSAN
		}

		side := domain.SideWhite
		if before.Turn() == chess.Black {
			side = domain.SideBlack
		}

		c := Candidate{
			GameID:          gameID,
			MoveIndex:       fullmoveNumber(before),
			FEN:             before.String(),
			Side:            side,
			PlayedSAN:       playedSAN,
			SolutionSAN:     solution,
			PreEval:         pre,
			PostEval:        post,
			Tag:             tag,
			InitialWeight:   initialWeight(pre, post),
			White:           white,
			Black:           black,
			Date:            date,
			TimeControl:     timeControl,
			TimeControlType: tcType,
		}
		report.Candidates = append(report.Candidates, c)
		p.logger.Debug("extracted puzzle candidate",
			"game_id", gameID,
			"move", c.MoveIndex,
			"tag", tag,
			"weight", c.InitialWeight)
	}
}

// annotationParts is one fully parsed engine annotation.
type annotationParts struct {
	pre, post float64
	tag       domain.Severity
}

// parseAnnotation extracts the evaluation pair and severity from a move
// comment. A comment that is not an engine annotation at all returns
// (nil, nil); a half-formed one returns domain.ErrParseSkip so the caller
// can count it and move on.
func parseAnnotation(comment string) (*annotationParts, error) {
	pre, post, evalOK := parseEvalPair(comment)
	tag, tagOK := parseSeverity(comment)
	switch {
	case !evalOK && !tagOK:
		return nil, nil
	case !evalOK:
		return nil, fmt.Errorf("%w: severity without evaluation pair", domain.ErrParseSkip)
	case !tagOK:
		return nil, fmt.Errorf("%w: evaluation pair without severity", domain.ErrParseSkip)
	}
	return &annotationParts{pre: pre, post: post, tag: tag}, nil
}

// instructive applies the candidate selection rule. Sign-changing swings are
// always kept; a move that merely deepens an already-decided position
// (|pre| > 2.0 and |post| grows without crossing zero) is not worth drilling.
func instructive(pre, post float64) bool {
	if signChange(pre, post) {
		return true
	}
	if math.Abs(pre) > 2.0 && math.Abs(post) > math.Abs(pre) {
		return false
	}
	return true
}

// initialWeight assigns the starting selection weight from the evaluation
// swing. Sign-changing mistakes start at no less than 5.0.
func initialWeight(pre, post float64) float64 {
	swing := math.Abs(pre - post)
	if signChange(pre, post) {
		return math.Max(5.0, swing*2.0)
	}
	return math.Max(1.0, swing)
}

func signChange(pre, post float64) bool {
	return (pre > 0 && post < 0) || (pre < 0 && post > 0)
}

func parseEvalPair(comment string) (pre, post float64, ok bool) {
	m := evalPair.FindStringSubmatch(comment)
	if m == nil {
		return 0, 0, false
	}
	pre, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	post, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return pre, post, true
}

func parseSeverity(comment string) (domain.Severity, bool) {
	lower := strings.ToLower(comment)
	for _, sw := range severityWords {
		if strings.Contains(lower, sw.word) {
			return sw.tag, true
		}
	}
	return "", false
}

// suggestedSAN extracts the engine's recommended move from the comment, or
// returns "" when the comment carries no suggestion.
func suggestedSAN(comment string) string {
	for _, pat := range suggestPatterns {
		if m := pat.FindStringSubmatch(comment); m != nil {
			return m[1]
		}
	}
	if strings.Contains(strings.ToLower(comment), "best") {
		return firstSAN.FindString(comment)
	}
	return ""
}

// gameIdentity prefers an explicit GameId header, falls back to the Site
// header (lichess URLs identify the game), then "unknown".
func gameIdentity(game *chess.Game) string {
	if v := tagValue(game, "GameId"); v != "" {
		return v
	}
	if v := tagValue(game, "Site"); v != "" {
		return v
	}
	return "unknown"
}

func tagValue(game *chess.Game, name string) string {
	tp := game.GetTagPair(name)
	if tp == nil {
		return ""
	}
	return tp.Value
}

// fullmoveNumber reads the move counter from the position's FEN, which
// always carries it as the sixth field.
func fullmoveNumber(pos *chess.Position) int {
	fields := strings.Fields(pos.String())
	if len(fields) < 6 {
		return 0
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil {
		return 0
	}
	return n
}
