package uci

import (
	"fmt"
	"strconv"
	"strings"
)

type EvalKind int

const (
	EvalNone EvalKind = iota
	EvalCentipawns
	EvalMate
)

// Evaluation is either a centipawn score or a mate distance, from the point
// of view of the side to move.
type Evaluation struct {
	Kind  EvalKind
	Value int
}

func Centipawns(cp int) Evaluation { return Evaluation{Kind: EvalCentipawns, Value: cp} }

func MateIn(n int) Evaluation { return Evaluation{Kind: EvalMate, Value: n} }

func (e Evaluation) IsSet() bool { return e.Kind != EvalNone }

func (e Evaluation) String() string {
	switch e.Kind {
	case EvalCentipawns:
		return fmt.Sprintf("cp %d", e.Value)
	case EvalMate:
		return fmt.Sprintf("mate %d", e.Value)
	default:
		return "none"
	}
}

// ParseState is the running view of one search transcript.
type ParseState struct {
	Eval     Evaluation
	Depth    int
	PV       []string
	BestMove string
	Ponder   string
	Done     bool
	// NoMove is set when the engine terminated with "bestmove (none)".
	NoMove bool
}

// Result is the structured outcome of one completed search.
type Result struct {
	BestMove   string
	Ponder     string
	Evaluation Evaluation
	Depth      int
	PV         []string
}

func (st *ParseState) Result() Result {
	return Result{
		BestMove:   st.BestMove,
		Ponder:     st.Ponder,
		Evaluation: st.Eval,
		Depth:      st.Depth,
		PV:         append([]string(nil), st.PV...),
	}
}

// Observe folds one output line into st. Unknown or malformed lines are
// ignored and nothing changes once the terminal line has been seen.
func Observe(line string, st *ParseState) {
	if st == nil || st.Done {
		return
	}
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}
	switch parts[0] {
	case "info":
		observeInfo(parts[1:], st)
	case "bestmove":
		observeBestMove(parts[1:], st)
	}
}

func observeBestMove(parts []string, st *ParseState) {
	if len(parts) == 0 {
		return
	}
	st.Done = true
	if parts[0] == "(none)" || parts[0] == "0000" {
		st.NoMove = true
		return
	}
	st.BestMove = parts[0]
	if len(parts) >= 3 && parts[1] == "ponder" {
		st.Ponder = parts[2]
	}
}

func observeInfo(parts []string, st *ParseState) {
	var (
		eval    Evaluation
		depth   int
		pv      []string
		multipv = 1
	)

	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "multipv":
			if i+1 >= len(parts) {
				return
			}
			v, err := strconv.Atoi(parts[i+1])
			if err != nil {
				return
			}
			multipv = v
			i++
		case "depth":
			if i+1 >= len(parts) {
				return
			}
			v, err := strconv.Atoi(parts[i+1])
			if err != nil {
				return
			}
			depth = v
			i++
		case "score":
			if i+2 >= len(parts) {
				return
			}
			v, err := strconv.Atoi(parts[i+2])
			if err != nil {
				return
			}
			switch parts[i+1] {
			case "cp":
				eval = Centipawns(v)
			case "mate":
				eval = MateIn(v)
			default:
				return
			}
			i += 2
		case "pv":
			pv = parts[i+1:]
			i = len(parts)
		case "string":
			// free text until end of line
			i = len(parts)
		}
	}

	if multipv != 1 || !eval.IsSet() {
		return
	}
	st.Eval = eval
	st.Depth = depth
	st.PV = append(st.PV[:0], pv...)
}
