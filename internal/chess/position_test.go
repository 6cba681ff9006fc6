package chess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sicilianFEN = "rnbqkbnr/pp1ppppp/8/2p5/4P3/8/PPPP1PPP/RNBQKBNR w KQkq c6 0 2"

func TestValidateFEN(t *testing.T) {
	assert.NoError(t, ValidateFEN("startpos"))
	assert.NoError(t, ValidateFEN(sicilianFEN))
	assert.NoError(t, ValidateFEN("fen "+sicilianFEN))

	assert.ErrorIs(t, ValidateFEN(""), ErrEmptyPosition)
	assert.ErrorIs(t, ValidateFEN("not a fen"), ErrInvalidFEN)
	assert.ErrorIs(t, ValidateFEN("rnbqkbnr/pppppppp/8/8 w KQkq - 0 1"), ErrInvalidFEN)
}

func TestMoveToSAN(t *testing.T) {
	san, err := MoveToSAN("startpos", nil, "e2e4")
	require.NoError(t, err)
	assert.Equal(t, "e4", san)

	san, err = MoveToSAN("startpos", []string{"e2e4"}, "g8f6")
	require.NoError(t, err)
	assert.Equal(t, "Nf6", san)

	san, err = MoveToSAN(sicilianFEN, nil, "G1F3")
	require.NoError(t, err)
	assert.Equal(t, "Nf3", san)

	_, err = MoveToSAN("startpos", []string{"e2e5"}, "e7e5")
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestValidateMoves(t *testing.T) {
	assert.NoError(t, ValidateMoves("startpos", []string{"e2e4", "c7c5", "g1f3"}))
	assert.ErrorIs(t, ValidateMoves("startpos", []string{"e2e4", "e2e4"}), ErrIllegalMove)
}

func TestLineToSAN(t *testing.T) {
	assert.Equal(t, []string{"e4", "e5", "Nf3"}, LineToSAN("startpos", nil, []string{"e2e4", "e7e5", "g1f3"}))
	assert.Equal(t, []string{"e4"}, LineToSAN("startpos", nil, []string{"e2e4", "zz"}))
	assert.Nil(t, LineToSAN("bogus", nil, []string{"e2e4"}))
}

func TestNormalizeBudget(t *testing.T) {
	var limits BudgetLimits

	got, err := limits.NormalizeBudget(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeBudget, got)

	got, err = limits.NormalizeBudget(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, got)

	_, err = limits.NormalizeBudget(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrBudgetOutOfRange)
	_, err = limits.NormalizeBudget(time.Minute)
	assert.ErrorIs(t, err, ErrBudgetOutOfRange)

	narrow := BudgetLimits{Default: 5 * time.Second, Min: time.Second, Max: 2 * time.Second}
	got, err = narrow.NormalizeBudget(0)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, got)
}

func TestMoveTimeFor(t *testing.T) {
	tests := []struct {
		budget time.Duration
		want   time.Duration
	}{
		{1500 * time.Millisecond, 1000 * time.Millisecond},
		{100 * time.Millisecond, 50 * time.Millisecond},
		{300 * time.Millisecond, 200 * time.Millisecond},
		{30 * time.Second, 29 * time.Second},
		{40 * time.Millisecond, time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MoveTimeFor(tt.budget), "budget %s", tt.budget)
	}
}
