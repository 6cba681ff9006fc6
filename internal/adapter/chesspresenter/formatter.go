package chesspresenter

import (
	"fmt"
	"strings"

	"github.com/park285/chess-position-analyzer/internal/chess/openingbook"
	"github.com/park285/chess-position-analyzer/internal/chess/uci"
	"github.com/park285/chess-position-analyzer/internal/msgcat"
	"github.com/park285/chess-position-analyzer/pkg/chessdto"
)

// Formatter renders analysis results and errors as human-readable text.
type Formatter struct {
	cat  *msgcat.Catalog
	book *openingbook.Book
}

func NewFormatter(cat *msgcat.Catalog) *Formatter {
	if cat == nil {
		cat = msgcat.Default()
	}
	return &Formatter{cat: cat}
}

// WithBook returns a copy of f that adds opening details to responses.
func (f *Formatter) WithBook(book *openingbook.Book) *Formatter {
	cp := *f
	cp.book = book
	return &cp
}

// Score renders an evaluation the way API clients have always received it,
// e.g. "42 centipawns" or "mate in 3".
func (f *Formatter) Score(ev uci.Evaluation) string {
	switch ev.Kind {
	case uci.EvalCentipawns:
		return f.cat.Text("score.centipawns", map[string]any{"Value": ev.Value}, fmt.Sprintf("%d centipawns", ev.Value))
	case uci.EvalMate:
		if ev.Value < 0 {
			return f.cat.Text("score.mated", map[string]any{"Moves": -ev.Value}, fmt.Sprintf("mated in %d", -ev.Value))
		}
		return f.cat.Text("score.mate", map[string]any{"Moves": ev.Value}, fmt.Sprintf("mate in %d", ev.Value))
	default:
		return f.cat.Text("score.none", nil, "no evaluation")
	}
}

// Message renders the text for an error code. detail fills the {{.Detail}}
// slot where the template has one.
func (f *Formatter) Message(code string, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Detail"]; !ok {
		data["Detail"] = ""
	}
	return f.cat.Text("error."+code, data, code)
}

func (f *Formatter) Banner() string {
	return f.cat.Text("server.banner", nil, "Backend is up and running!")
}

func (f *Formatter) NotFound(method, path string) string {
	return f.cat.Text("server.not_found", map[string]any{"Method": method, "Path": path}, "not found")
}

// Summary is the multi-line report printed by the command line client.
func (f *Formatter) Summary(resp chessdto.AnalyzeResponse) string {
	line := resp.PVSAN
	if len(line) == 0 {
		line = resp.PV
	}
	data := map[string]any{
		"BestMove": resp.BestMove,
		"SAN":      resp.BestMoveSAN,
		"Score":    resp.Score,
		"Depth":    resp.Depth,
		"PV":       strings.Join(line, " "),
		"Opening":  "",
	}
	if resp.Opening != nil {
		data["Opening"] = resp.Opening.ECO + " " + resp.Opening.Name
	}
	fallback := fmt.Sprintf("best move: %s\nscore:     %s", resp.BestMove, resp.Score)
	return f.cat.Text("cli.summary", data, fallback)
}

func (f *Formatter) Check(name string, pid int, elapsed string) string {
	data := map[string]any{"Name": name, "PID": pid, "Elapsed": elapsed}
	return f.cat.Text("cli.check", data, fmt.Sprintf("engine %s ready", name))
}
