package chess

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-position-analyzer/internal/chess/uci"
)

// PositionAnalyzer is implemented by Analyzer and its decorators.
type PositionAnalyzer interface {
	Analyze(ctx context.Context, req Request) (uci.Result, error)
}

type AnalyzerConfig struct {
	Session uci.Config
	// Reuse keeps engine processes alive between requests. When false each
	// request gets its own process, which is terminated before Analyze returns.
	Reuse         bool
	PoolCapacity  int
	DefaultBudget time.Duration
	MinBudget     time.Duration
	MaxBudget     time.Duration
	Logger        *zap.Logger
}

type Request struct {
	Position   string
	Moves      []string
	TimeBudget time.Duration
	Depth      int
}

// Stats describes the analyzer for health reporting.
type Stats struct {
	Mode   string
	Engine string
	Pool   uci.PoolStats
}

type Analyzer struct {
	session uci.Config
	limits  BudgetLimits
	pool    *uci.Pool
	log     *zap.Logger
}

func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = log
	}
	if strings.TrimSpace(cfg.Session.BinaryPath) == "" {
		return nil, fmt.Errorf("engine binary path required")
	}

	a := &Analyzer{
		session: cfg.Session,
		limits: BudgetLimits{
			Default: cfg.DefaultBudget,
			Min:     cfg.MinBudget,
			Max:     cfg.MaxBudget,
		}.Normalized(),
		log: log,
	}

	if cfg.Reuse {
		pool, err := uci.NewPool(uci.PoolConfig{Session: cfg.Session, Capacity: cfg.PoolCapacity})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		return a, nil
	}
	if _, err := os.Stat(cfg.Session.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	return a, nil
}

// Analyze evaluates one position. Input errors are reported before any
// engine process is touched; engine errors are *uci.EngineFailure values.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (uci.Result, error) {
	if err := uci.CheckPosition(req.Position); err != nil {
		return uci.Result{}, err
	}
	moves := NormalizeMoves(req.Moves)
	if err := uci.CheckMoves(moves); err != nil {
		return uci.Result{}, err
	}
	if err := validateDepth(req.Depth); err != nil {
		return uci.Result{}, err
	}
	budget, err := a.limits.NormalizeBudget(req.TimeBudget)
	if err != nil {
		return uci.Result{}, err
	}

	search := uci.Search{
		Position: strings.TrimSpace(req.Position),
		Moves:    moves,
		MoveTime: MoveTimeFor(budget),
		Depth:    req.Depth,
		Deadline: budget,
	}

	log := a.log.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("position", search.Position),
		zap.Int("moves", len(search.Moves)),
		zap.Duration("budget", budget),
	)
	start := time.Now()

	var res uci.Result
	if a.pool != nil {
		res, err = a.analyzePooled(ctx, search)
	} else {
		res, err = a.analyzeFresh(ctx, search)
	}

	latency := time.Since(start)
	if err != nil {
		log.Warn("position analysis failed",
			zap.String("kind", uci.FailureKindOf(err).String()),
			zap.Duration("latency", latency),
			zap.Error(err))
		return uci.Result{}, err
	}
	log.Info("position analysed",
		zap.String("best_move", res.BestMove),
		zap.String("score", res.Evaluation.String()),
		zap.Int("depth", res.Depth),
		zap.Duration("latency", latency))
	return res, nil
}

func (a *Analyzer) analyzeFresh(ctx context.Context, search uci.Search) (uci.Result, error) {
	session, err := uci.NewSession(ctx, a.session)
	if err != nil {
		return uci.Result{}, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			a.log.Warn("engine close failed", zap.Int("pid", session.PID()), zap.Error(cerr))
		}
	}()
	return session.Analyze(ctx, search)
}

func (a *Analyzer) analyzePooled(ctx context.Context, search uci.Search) (res uci.Result, err error) {
	session, err := a.pool.Acquire(ctx)
	if err != nil {
		return uci.Result{}, err
	}
	defer func() {
		a.pool.Release(session, err)
	}()
	return session.Analyze(ctx, search)
}

func (a *Analyzer) Limits() BudgetLimits {
	return a.limits
}

func (a *Analyzer) Stats() Stats {
	st := Stats{Mode: "fresh", Engine: a.session.BinaryPath}
	if a.pool != nil {
		st.Mode = "pooled"
		st.Pool = a.pool.Stats()
	}
	return st
}

func (a *Analyzer) Close() error {
	if a.pool == nil {
		return nil
	}
	return a.pool.Close()
}
