package chess

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-position-analyzer/internal/chess/uci"
)

var (
	ErrEmptyPosition = uci.ErrEmptyPosition
	ErrInvalidFEN    = errors.New("invalid FEN")
	ErrIllegalMove   = errors.New("illegal move")
)

// ValidateFEN accepts "startpos" or any FEN the move generator can load.
func ValidateFEN(position string) error {
	_, err := newGame(position)
	return err
}

// ValidateMoves checks that moves (UCI notation) can be played in order
// from position.
func ValidateMoves(position string, moves []string) error {
	_, err := replay(position, moves)
	return err
}

// MoveToSAN renders uciMove in standard algebraic notation for the position
// reached after moves.
func MoveToSAN(position string, moves []string, uciMove string) (string, error) {
	game, err := replay(position, moves)
	if err != nil {
		return "", err
	}
	pos := game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, normalizeMove(uciMove))
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrIllegalMove, uciMove, err)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.Move(mv, nil); err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrIllegalMove, uciMove, err)
	}
	return san, nil
}

// LineToSAN converts a principal variation, stopping at the first move that
// does not decode.
func LineToSAN(position string, moves, line []string) []string {
	game, err := replay(position, moves)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(line))
	notation := nchess.UCINotation{}
	for _, raw := range line {
		pos := game.Position()
		mv, err := notation.Decode(pos, normalizeMove(raw))
		if err != nil {
			break
		}
		out = append(out, nchess.AlgebraicNotation{}.Encode(pos, mv))
		if err := game.Move(mv, nil); err != nil {
			break
		}
	}
	return out
}

func newGame(position string) (*nchess.Game, error) {
	pos := strings.TrimSpace(position)
	if pos == "" {
		return nil, ErrEmptyPosition
	}
	if pos == uci.StartPosition {
		return nchess.NewGame(), nil
	}
	pos = strings.TrimSpace(strings.TrimPrefix(pos, "fen "))
	opt, err := nchess.FEN(pos)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return nchess.NewGame(opt), nil
}

func replay(position string, moves []string) (*nchess.Game, error) {
	game, err := newGame(position)
	if err != nil {
		return nil, err
	}
	notation := nchess.UCINotation{}
	for _, raw := range moves {
		mv, err := notation.Decode(game.Position(), normalizeMove(raw))
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrIllegalMove, raw, err)
		}
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrIllegalMove, raw, err)
		}
	}
	return game, nil
}

// NormalizeMoves returns moves in the form the engine expects: trimmed and
// lower case. Validation and the engine must see the same slice.
func NormalizeMoves(moves []string) []string {
	if len(moves) == 0 {
		return nil
	}
	out := make([]string, len(moves))
	for i, mv := range moves {
		out[i] = normalizeMove(mv)
	}
	return out
}

func normalizeMove(mv string) string {
	return strings.ToLower(strings.TrimSpace(mv))
}
