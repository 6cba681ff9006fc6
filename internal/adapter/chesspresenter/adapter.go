package chesspresenter

import (
	"context"
	"errors"

	"github.com/valyala/fasthttp"

	"github.com/park285/chess-position-analyzer/internal/chess"
	"github.com/park285/chess-position-analyzer/internal/chess/uci"
	"github.com/park285/chess-position-analyzer/pkg/chessdto"
)

const (
	CodeFENRequired      = "fen_required"
	CodeInvalidFEN       = "invalid_fen"
	CodeIllegalMove      = "illegal_move"
	CodeBadRequest       = "bad_request"
	CodeBudgetOutOfRange = "budget_out_of_range"
	CodeInvalidDepth     = "invalid_depth"
	CodeEngineUnavail    = "engine_unavailable"
	CodeEngineBusy       = "engine_busy"
	CodeEngineTimeout    = "engine_timeout"
	CodeEngineCrashed    = "engine_crashed"
	CodeEngineMalformed  = "engine_malformed"
	CodeEngineNoResult   = "engine_no_result"
	CodeInternal         = "internal"
)

// ToAnalyzeResponse converts an engine result. SAN fields are best effort
// and left empty when the position cannot be replayed.
func (f *Formatter) ToAnalyzeResponse(req chess.Request, res uci.Result) chessdto.AnalyzeResponse {
	out := chessdto.AnalyzeResponse{
		BestMove:   res.BestMove,
		Ponder:     res.Ponder,
		Score:      f.Score(res.Evaluation),
		Evaluation: ToDTOEvaluation(res.Evaluation),
		Depth:      res.Depth,
		PV:         append([]string(nil), res.PV...),
	}
	if san, err := chess.MoveToSAN(req.Position, req.Moves, res.BestMove); err == nil {
		out.BestMoveSAN = san
	}
	if len(res.PV) > 0 {
		out.PVSAN = chess.LineToSAN(req.Position, req.Moves, res.PV)
	}
	f.addOpening(&out, req)
	return out
}

func (f *Formatter) addOpening(out *chessdto.AnalyzeResponse, req chess.Request) {
	if f.book == nil {
		return
	}
	if op, ok := f.book.Identify(req.Position, req.Moves); ok {
		out.Opening = &chessdto.Opening{ECO: op.ECO, Name: op.Name}
	}
	moves, err := f.book.Moves(req.Position, req.Moves)
	if err != nil {
		return
	}
	for _, m := range moves {
		bm := chessdto.BookMove{Move: m.Move, Weight: int(m.Weight)}
		if san, err := chess.MoveToSAN(req.Position, req.Moves, m.Move); err == nil {
			bm.SAN = san
		}
		out.BookMoves = append(out.BookMoves, bm)
	}
}

func ToDTOEvaluation(ev uci.Evaluation) chessdto.Evaluation {
	switch ev.Kind {
	case uci.EvalCentipawns:
		return chessdto.Evaluation{Type: "cp", Value: ev.Value}
	case uci.EvalMate:
		return chessdto.Evaluation{Type: "mate", Value: ev.Value}
	default:
		return chessdto.Evaluation{Type: "none"}
	}
}

func ToDTOPoolStats(st uci.PoolStats) *chessdto.PoolStats {
	return &chessdto.PoolStats{Total: st.Total, Idle: st.Idle, Capacity: st.Capacity}
}

// ErrorCode classifies err into an API error code and HTTP status.
func ErrorCode(err error) (string, int, bool) {
	switch {
	case errors.Is(err, chess.ErrEmptyPosition):
		return CodeFENRequired, fasthttp.StatusBadRequest, false
	case errors.Is(err, chess.ErrInvalidFEN), errors.Is(err, uci.ErrInvalidPosition):
		return CodeInvalidFEN, fasthttp.StatusBadRequest, false
	case errors.Is(err, chess.ErrIllegalMove), errors.Is(err, uci.ErrInvalidMove):
		return CodeIllegalMove, fasthttp.StatusBadRequest, false
	case errors.Is(err, chess.ErrBudgetOutOfRange):
		return CodeBudgetOutOfRange, fasthttp.StatusBadRequest, false
	case errors.Is(err, chess.ErrInvalidDepth):
		return CodeInvalidDepth, fasthttp.StatusBadRequest, false
	}

	switch uci.FailureKindOf(err) {
	case uci.ProcessSpawnFailed:
		return CodeEngineUnavail, fasthttp.StatusServiceUnavailable, true
	case uci.Timeout:
		return CodeEngineTimeout, fasthttp.StatusGatewayTimeout, true
	case uci.ProcessCrashed:
		return CodeEngineCrashed, fasthttp.StatusBadGateway, true
	case uci.MalformedOutput:
		return CodeEngineMalformed, fasthttp.StatusBadGateway, false
	case uci.NoResultProduced:
		return CodeEngineNoResult, fasthttp.StatusInternalServerError, false
	}

	switch {
	case errors.Is(err, uci.ErrPoolClosed), errors.Is(err, uci.ErrSessionBusy),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeEngineBusy, fasthttp.StatusServiceUnavailable, true
	}
	return CodeInternal, fasthttp.StatusInternalServerError, false
}

// ToDomainError maps err onto the caller-visible error and its HTTP status.
func (f *Formatter) ToDomainError(err error, data map[string]any) (chessdto.DomainError, int) {
	code, status, retryable := ErrorCode(err)
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Detail"]; !ok && err != nil && status == fasthttp.StatusBadRequest {
		data["Detail"] = err.Error()
	}
	return chessdto.DomainError{
		Code:      code,
		Message:   f.Message(code, data),
		Retryable: retryable,
	}, status
}
