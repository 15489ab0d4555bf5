package answer

import (
	"fmt"

	"github.com/notnil/chess"

	"github.com/felixgeelhaar/hone/internal/domain"
)

// FromSquare decodes the stored reference move against the puzzle position
// and returns only its origin square, e.g. "g1". The destination and the
// moving piece stay hidden so a hint narrows the search without giving the
// move away.
func FromSquare(fen, solutionSAN string) (string, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("%w: bad puzzle position: %v", domain.ErrInvalidInput, err)
	}
	game := chess.NewGame(fenOpt)

	move, err := chess.AlgebraicNotation{}.Decode(game.Position(), solutionSAN)
	if err != nil {
		return "", fmt.Errorf("decode solution %q: %w", solutionSAN, err)
	}
	return move.S1().String(), nil
}
