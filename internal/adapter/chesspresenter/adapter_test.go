package chesspresenter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/park285/chess-position-analyzer/internal/chess"
	"github.com/park285/chess-position-analyzer/internal/chess/openingbook"
	"github.com/park285/chess-position-analyzer/internal/chess/uci"
	"github.com/park285/chess-position-analyzer/pkg/chessdto"
)

func TestScore(t *testing.T) {
	f := NewFormatter(nil)
	assert.Equal(t, "42 centipawns", f.Score(uci.Centipawns(42)))
	assert.Equal(t, "-15 centipawns", f.Score(uci.Centipawns(-15)))
	assert.Equal(t, "mate in 3", f.Score(uci.MateIn(3)))
	assert.Equal(t, "mated in 2", f.Score(uci.MateIn(-2)))
	assert.Equal(t, "no evaluation", f.Score(uci.Evaluation{}))
}

func TestToAnalyzeResponse(t *testing.T) {
	f := NewFormatter(nil)
	req := chess.Request{Position: "startpos", Moves: []string{"e2e4"}}
	res := uci.Result{
		BestMove:   "c7c5",
		Ponder:     "g1f3",
		Evaluation: uci.Centipawns(-20),
		Depth:      12,
		PV:         []string{"c7c5", "g1f3"},
	}

	got := f.ToAnalyzeResponse(req, res)
	assert.Equal(t, chessdto.AnalyzeResponse{
		BestMove:    "c7c5",
		BestMoveSAN: "c5",
		Ponder:      "g1f3",
		Score:       "-20 centipawns",
		Evaluation:  chessdto.Evaluation{Type: "cp", Value: -20},
		Depth:       12,
		PV:          []string{"c7c5", "g1f3"},
		PVSAN:       []string{"c5", "Nf3"},
	}, got)
}

func TestToAnalyzeResponseOpening(t *testing.T) {
	book, err := openingbook.Open("")
	require.NoError(t, err)
	f := NewFormatter(nil).WithBook(book)

	req := chess.Request{Position: "startpos", Moves: []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"}}
	got := f.ToAnalyzeResponse(req, uci.Result{BestMove: "a7a6", Evaluation: uci.Centipawns(30)})
	require.NotNil(t, got.Opening)
	assert.Equal(t, "C60", got.Opening.ECO)
	assert.Empty(t, got.BookMoves)
	assert.Contains(t, f.Summary(got), "opening:   C60")

	got = NewFormatter(nil).ToAnalyzeResponse(req, uci.Result{BestMove: "a7a6"})
	assert.Nil(t, got.Opening)
}

func TestToAnalyzeResponseUnreplayablePosition(t *testing.T) {
	f := NewFormatter(nil)
	got := f.ToAnalyzeResponse(chess.Request{Position: "garbage"}, uci.Result{BestMove: "e2e4", Evaluation: uci.MateIn(1)})
	assert.Equal(t, "e2e4", got.BestMove)
	assert.Empty(t, got.BestMoveSAN)
	assert.Equal(t, chessdto.Evaluation{Type: "mate", Value: 1}, got.Evaluation)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err       error
		code      string
		status    int
		retryable bool
	}{
		{chess.ErrEmptyPosition, CodeFENRequired, fasthttp.StatusBadRequest, false},
		{fmt.Errorf("%w: bad", chess.ErrInvalidFEN), CodeInvalidFEN, fasthttp.StatusBadRequest, false},
		{uci.ErrInvalidPosition, CodeInvalidFEN, fasthttp.StatusBadRequest, false},
		{fmt.Errorf("%w e2e5", chess.ErrIllegalMove), CodeIllegalMove, fasthttp.StatusBadRequest, false},
		{fmt.Errorf("%w: move 1 %q", uci.ErrInvalidMove, "e2 e4"), CodeIllegalMove, fasthttp.StatusBadRequest, false},
		{chess.ErrBudgetOutOfRange, CodeBudgetOutOfRange, fasthttp.StatusBadRequest, false},
		{chess.ErrInvalidDepth, CodeInvalidDepth, fasthttp.StatusBadRequest, false},
		{&uci.EngineFailure{Kind: uci.ProcessSpawnFailed}, CodeEngineUnavail, fasthttp.StatusServiceUnavailable, true},
		{&uci.EngineFailure{Kind: uci.Timeout}, CodeEngineTimeout, fasthttp.StatusGatewayTimeout, true},
		{fmt.Errorf("wrapped: %w", &uci.EngineFailure{Kind: uci.ProcessCrashed, ExitCode: 3}), CodeEngineCrashed, fasthttp.StatusBadGateway, true},
		{&uci.EngineFailure{Kind: uci.MalformedOutput}, CodeEngineMalformed, fasthttp.StatusBadGateway, false},
		{&uci.EngineFailure{Kind: uci.NoResultProduced}, CodeEngineNoResult, fasthttp.StatusInternalServerError, false},
		{uci.ErrPoolClosed, CodeEngineBusy, fasthttp.StatusServiceUnavailable, true},
		{context.DeadlineExceeded, CodeEngineBusy, fasthttp.StatusServiceUnavailable, true},
		{errors.New("boom"), CodeInternal, fasthttp.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		code, status, retryable := ErrorCode(tt.err)
		assert.Equal(t, tt.code, code, "%v", tt.err)
		assert.Equal(t, tt.status, status, "%v", tt.err)
		assert.Equal(t, tt.retryable, retryable, "%v", tt.err)
	}
}

func TestToDomainError(t *testing.T) {
	f := NewFormatter(nil)

	de, status := f.ToDomainError(chess.ErrEmptyPosition, nil)
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, chessdto.DomainError{Code: CodeFENRequired, Message: "FEN is required"}, de)

	de, status = f.ToDomainError(chess.ErrBudgetOutOfRange, map[string]any{"Min": 100, "Max": 30000})
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, "time_ms must be between 100 and 30000", de.Message)

	de, status = f.ToDomainError(&uci.EngineFailure{Kind: uci.Timeout}, nil)
	assert.Equal(t, fasthttp.StatusGatewayTimeout, status)
	assert.True(t, de.Retryable)
	assert.Equal(t, "Chess engine did not answer in time", de.Error())
}

func TestSummary(t *testing.T) {
	f := NewFormatter(nil)
	out := f.Summary(chessdto.AnalyzeResponse{
		BestMove:    "e2e4",
		BestMoveSAN: "e4",
		Score:       "42 centipawns",
		Depth:       10,
		PVSAN:       []string{"e4", "e5"},
	})
	assert.Equal(t, "best move: e2e4 (e4)\nscore:     42 centipawns\ndepth:     10\nline:      e4 e5", out)
}
