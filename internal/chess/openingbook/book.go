package openingbook

import (
	"fmt"
	"os"
	"sort"
	"strings"

	chesslib "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

// DefaultMaxMoves caps how many book moves Moves reports.
const DefaultMaxMoves = 5

// Opening names the ECO line a game has followed from the initial position.
type Opening struct {
	ECO  string
	Name string
}

type Move struct {
	Move   string
	Weight uint16
}

// Book answers opening questions about analysed positions. The ECO table is
// always available; Polyglot moves only when a book file was loaded.
type Book struct {
	eco      *opening.BookECO
	polyglot *chesslib.PolyglotBook
	path     string
	maxMoves int
}

// Open loads the Polyglot book at path. An empty path yields a Book that
// only identifies openings.
func Open(path string) (*Book, error) {
	b := &Book{eco: opening.NewBookECO(), maxMoves: DefaultMaxMoves}
	path = strings.TrimSpace(path)
	if path == "" {
		return b, nil
	}
	pg, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	b.polyglot = pg
	b.path = path
	return b, nil
}

func LoadFromPath(bookPath string) (*chesslib.PolyglotBook, error) {
	if strings.TrimSpace(bookPath) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(bookPath)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", bookPath, err)
	}
	defer file.Close()

	book, err := chesslib.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", bookPath, err)
	}
	return book, nil
}

func (b *Book) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

// HasPolyglot reports whether book moves can be looked up.
func (b *Book) HasPolyglot() bool {
	return b != nil && b.polyglot != nil
}

// Identify returns the most specific ECO opening for moves played from the
// initial position. Games that start from any other FEN are never named.
func (b *Book) Identify(position string, moves []string) (Opening, bool) {
	if b == nil || len(moves) == 0 || !isInitial(position) {
		return Opening{}, false
	}
	game, err := buildGameFromPosition(position, moves)
	if err != nil {
		return Opening{}, false
	}
	eco := b.eco.Find(game.Moves())
	if eco == nil {
		return Opening{}, false
	}
	return Opening{ECO: eco.Code(), Name: eco.Title()}, true
}

// Moves lists Polyglot book moves for the position reached after moves,
// heaviest first. Entries the position does not accept are skipped.
func (b *Book) Moves(position string, moves []string) ([]Move, error) {
	if !b.HasPolyglot() {
		return nil, nil
	}
	game, err := buildGameFromPosition(position, moves)
	if err != nil {
		return nil, err
	}

	hasher := chesslib.NewZobristHasher()
	hashStr, err := hasher.HashPosition(game.FEN())
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}
	entries := append([]chesslib.PolyglotEntry(nil), b.polyglot.FindMoves(chesslib.ZobristHashToUint64(hashStr))...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Weight > entries[j].Weight })

	var out []Move
	for _, entry := range entries {
		if len(out) >= b.maxMoves {
			break
		}
		decoded := chesslib.DecodeMove(entry.Move).ToMove()
		uciMove := decoded.String()
		verify, err := buildGameFromPosition(position, moves)
		if err != nil {
			return nil, err
		}
		if err := verify.PushNotationMove(uciMove, chesslib.UCINotation{}, nil); err != nil {
			continue
		}
		out = append(out, Move{Move: uciMove, Weight: entry.Weight})
	}
	return out, nil
}

// isInitial compares placement, side to move, castling and en passant; the
// move counters do not change which opening is on the board.
func isInitial(position string) bool {
	position = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(position), "fen "))
	if position == "" || position == "startpos" {
		return true
	}
	return fenKey(position) == fenKey(chesslib.NewGame().FEN())
}

func fenKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

func buildGameFromPosition(fen string, moves []string) (*chesslib.Game, error) {
	fen = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(fen), "fen "))

	var game *chesslib.Game
	if fen == "" || fen == "startpos" {
		game = chesslib.NewGame()
	} else {
		option, err := chesslib.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("parse fen %q: %w", fen, err)
		}
		game = chesslib.NewGame(option)
	}

	for _, mv := range moves {
		if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %q: %w", mv, err)
		}
	}
	return game, nil
}
