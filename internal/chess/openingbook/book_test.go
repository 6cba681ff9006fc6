package openingbook

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// polyglot key of the initial position
const startKey uint64 = 0x463b96181691fc9c

func polyMove(fromFile, fromRank, toFile, toRank int) uint16 {
	return uint16(toFile | toRank<<3 | fromFile<<6 | fromRank<<9)
}

func writeBook(t *testing.T, entries ...[3]uint64) string {
	t.Helper()
	buf := make([]byte, 0, 16*len(entries))
	for _, e := range entries {
		var rec [16]byte
		binary.BigEndian.PutUint64(rec[0:8], e[0])
		binary.BigEndian.PutUint16(rec[8:10], uint16(e[1]))
		binary.BigEndian.PutUint16(rec[10:12], uint16(e[2]))
		buf = append(buf, rec[:]...)
	}
	path := filepath.Join(t.TempDir(), "book.bin")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestIdentify(t *testing.T) {
	b, err := Open("")
	require.NoError(t, err)
	assert.False(t, b.HasPolyglot())

	op, ok := b.Identify("startpos", []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"})
	require.True(t, ok)
	assert.Equal(t, "C60", op.ECO)
	assert.Contains(t, op.Name, "Ruy Lopez")

	_, ok = b.Identify("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"})
	assert.True(t, ok, "explicit initial FEN is the same game")

	_, ok = b.Identify("startpos", nil)
	assert.False(t, ok)
	_, ok = b.Identify("8/8/8/4k3/8/8/4K3/8 w - - 0 1", []string{"e2e3"})
	assert.False(t, ok)
	_, ok = b.Identify("startpos", []string{"e2e5"})
	assert.False(t, ok)
}

func TestMovesWithoutPolyglot(t *testing.T) {
	var b *Book
	moves, err := b.Moves("startpos", nil)
	require.NoError(t, err)
	assert.Nil(t, moves)
	assert.Empty(t, b.Path())
}

func TestPolyglotMoves(t *testing.T) {
	path := writeBook(t,
		[3]uint64{startKey, uint64(polyMove(3, 1, 3, 3)), 10}, // d2d4
		[3]uint64{startKey, uint64(polyMove(4, 1, 4, 3)), 40}, // e2e4
	)
	b, err := Open(path)
	require.NoError(t, err)
	assert.True(t, b.HasPolyglot())
	assert.Equal(t, path, b.Path())

	moves, err := b.Moves("startpos", nil)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, Move{Move: "e2e4", Weight: 40}, moves[0])
	assert.Equal(t, Move{Move: "d2d4", Weight: 10}, moves[1])

	moves, err = b.Moves("startpos", []string{"g1f3"})
	require.NoError(t, err)
	assert.Empty(t, moves)

	_, err = b.Moves("not a fen", nil)
	assert.Error(t, err)
}

func TestOpenMissingBook(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorContains(t, err, "open polyglot book")
}
