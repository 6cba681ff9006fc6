package chess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-position-analyzer/internal/chess/uci"
	"github.com/park285/chess-position-analyzer/internal/chess/uci/ucitest"
)

func newTestAnalyzer(t *testing.T, script ucitest.Script, reuse bool) (*Analyzer, string) {
	t.Helper()
	logPath := ucitest.CommandLog(t)
	path := ucitest.Write(t, script)
	a, err := NewAnalyzer(AnalyzerConfig{
		Session: uci.Config{
			BinaryPath: path,
			Args:       []string{logPath},
			QuitGrace:  200 * time.Millisecond,
		},
		Reuse:        reuse,
		PoolCapacity: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, logPath
}

func count(lines []string, want string) int {
	n := 0
	for _, l := range lines {
		if l == want {
			n++
		}
	}
	return n
}

var bestE4 = ucitest.Script{
	OnGo: ucitest.Transcript("info depth 9 score cp 35 pv e2e4", "info depth 10 score cp 42 pv e2e4 e7e5", "bestmove e2e4 ponder e7e5"),
}

func TestAnalyzerFreshProcessPerRequest(t *testing.T) {
	a, logPath := newTestAnalyzer(t, bestE4, false)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := a.Analyze(ctx, Request{Position: "startpos", TimeBudget: 300 * time.Millisecond})
		require.NoError(t, err)
		assert.Equal(t, "e2e4", res.BestMove)
		assert.Equal(t, uci.Centipawns(42), res.Evaluation)
		assert.Equal(t, 10, res.Depth)
	}

	cmds := ucitest.ReadLog(t, logPath)
	assert.Equal(t, 2, count(cmds, "uci"))
	assert.Equal(t, 2, count(cmds, "quit"))
	assert.Contains(t, cmds, "go movetime 200")
	assert.Equal(t, "fresh", a.Stats().Mode)
}

func TestAnalyzerPooledReusesProcess(t *testing.T) {
	a, logPath := newTestAnalyzer(t, bestE4, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := a.Analyze(ctx, Request{Position: "startpos", Moves: []string{"e2e4"}, TimeBudget: 300 * time.Millisecond})
		require.NoError(t, err)
		assert.Equal(t, "e2e4", res.BestMove)
	}

	cmds := ucitest.ReadLog(t, logPath)
	assert.Equal(t, 1, count(cmds, "uci"))
	assert.Equal(t, 2, count(cmds, "ucinewgame"))
	assert.Equal(t, 3, count(cmds, "position startpos moves e2e4"))

	st := a.Stats()
	assert.Equal(t, "pooled", st.Mode)
	assert.Equal(t, uci.PoolStats{Total: 1, Idle: 1, Capacity: 1}, st.Pool)
}

func TestAnalyzerRejectsInputWithoutSpawning(t *testing.T) {
	a, logPath := newTestAnalyzer(t, bestE4, false)
	ctx := context.Background()

	_, err := a.Analyze(ctx, Request{Position: "   "})
	assert.ErrorIs(t, err, ErrEmptyPosition)

	_, err = a.Analyze(ctx, Request{Position: "startpos", TimeBudget: time.Hour})
	assert.ErrorIs(t, err, ErrBudgetOutOfRange)

	_, err = a.Analyze(ctx, Request{Position: "startpos", TimeBudget: -time.Second})
	assert.ErrorIs(t, err, ErrBudgetOutOfRange)

	_, err = a.Analyze(ctx, Request{Position: "startpos", Depth: -1})
	assert.ErrorIs(t, err, ErrInvalidDepth)

	assert.Empty(t, ucitest.ReadLog(t, logPath))
}

func TestAnalyzerForwardsNormalizedMoves(t *testing.T) {
	a, logPath := newTestAnalyzer(t, bestE4, false)
	ctx := context.Background()

	_, err := a.Analyze(ctx, Request{Position: "startpos", Moves: []string{"E2E4"}, TimeBudget: 300 * time.Millisecond})
	require.NoError(t, err)
	_, err = a.Analyze(ctx, Request{Position: "startpos", Moves: []string{"\ne2e4", " E7E5 "}, TimeBudget: 300 * time.Millisecond})
	require.NoError(t, err)

	cmds := ucitest.ReadLog(t, logPath)
	assert.Equal(t, 1, count(cmds, "position startpos moves e2e4"))
	assert.Equal(t, 1, count(cmds, "position startpos moves e2e4 e7e5"))
	assert.NotContains(t, cmds, "e2e4")
	assert.Equal(t, 2, count(cmds, "go movetime 200"))

	_, err = a.Analyze(ctx, Request{Position: "startpos", Moves: []string{"e2 e4"}})
	assert.ErrorIs(t, err, uci.ErrInvalidMove)
}

func TestNormalizeMoves(t *testing.T) {
	assert.Nil(t, NormalizeMoves(nil))
	assert.Equal(t, []string{"e2e4", "e7e8q"}, NormalizeMoves([]string{" E2E4\n", "e7e8Q"}))
}

func TestAnalyzerTimeoutTerminatesEngine(t *testing.T) {
	a, _ := newTestAnalyzer(t, ucitest.Script{
		OnGo:   ucitest.Hang,
		OnQuit: ucitest.Hang,
		AtEOF:  ucitest.SleepForever,
	}, false)

	budget := 300 * time.Millisecond
	start := time.Now()
	_, err := a.Analyze(context.Background(), Request{Position: "startpos", TimeBudget: budget})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, uci.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, budget)
	// budget, quit grace and the kill all fit well inside this bound
	assert.Less(t, elapsed, budget+2*time.Second)
}

func TestAnalyzerPooledDiscardsCrashedEngine(t *testing.T) {
	a, logPath := newTestAnalyzer(t, ucitest.Script{OnGo: `echo "info score cp 1"; exit 6`}, true)

	_, err := a.Analyze(context.Background(), Request{Position: "startpos", TimeBudget: 300 * time.Millisecond})
	require.Error(t, err)
	var ef *uci.EngineFailure
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, uci.ProcessCrashed, ef.Kind)
	assert.Equal(t, 6, ef.ExitCode)
	assert.Equal(t, 0, a.Stats().Pool.Total)

	_, err = a.Analyze(context.Background(), Request{Position: "startpos", TimeBudget: 300 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, 2, count(ucitest.ReadLog(t, logPath), "uci"))
}

func TestNewAnalyzerRequiresBinary(t *testing.T) {
	_, err := NewAnalyzer(AnalyzerConfig{})
	assert.Error(t, err)

	_, err = NewAnalyzer(AnalyzerConfig{Session: uci.Config{BinaryPath: "/nonexistent/stockfish"}})
	assert.Error(t, err)

	_, err = NewAnalyzer(AnalyzerConfig{Session: uci.Config{BinaryPath: "/nonexistent/stockfish"}, Reuse: true})
	assert.Error(t, err)
}
