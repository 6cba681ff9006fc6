package uci

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const StartPosition = "startpos"

var (
	ErrEmptyPosition   = errors.New("position is required")
	ErrInvalidPosition = errors.New("position contains line breaks")
	ErrInvalidMove     = errors.New("move must be a single non-empty token")
)

// Options are engine settings sent with setoption during the handshake.
// Zero values leave the engine default untouched.
type Options struct {
	Threads int
	HashMB  int
	MultiPV int
	Extra   map[string]string
}

// Search describes one "position" + "go" cycle.
type Search struct {
	Position string
	Moves    []string
	MoveTime time.Duration
	Depth    int
	// Deadline bounds the wait for the terminal line, measured from the
	// moment "go" is written. Zero derives it from MoveTime and Depth.
	Deadline time.Duration
}

// CheckPosition rejects positions that cannot be forwarded verbatim.
func CheckPosition(position string) error {
	if strings.TrimSpace(position) == "" {
		return ErrEmptyPosition
	}
	if strings.ContainsAny(position, "\r\n") {
		return ErrInvalidPosition
	}
	return nil
}

// CheckMoves rejects moves that would not survive being joined into a
// single "position" line: empty entries and anything containing whitespace.
func CheckMoves(moves []string) error {
	for i, mv := range moves {
		if mv == "" || strings.IndexFunc(mv, unicode.IsSpace) >= 0 {
			return fmt.Errorf("%w: move %d %q", ErrInvalidMove, i+1, mv)
		}
	}
	return nil
}

func buildPositionCommand(position string, moves []string) string {
	var sb strings.Builder
	pos := strings.TrimSpace(position)
	switch {
	case pos == StartPosition, strings.HasPrefix(pos, StartPosition+" "), strings.HasPrefix(pos, "fen "):
		sb.WriteString("position ")
		sb.WriteString(pos)
	default:
		sb.WriteString("position fen ")
		sb.WriteString(pos)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func buildGoTokens(req Search) ([]string, error) {
	args := []string{"go"}
	if req.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(req.Depth))
	}
	if ms := req.MoveTime.Milliseconds(); ms > 0 {
		args = append(args, "movetime", strconv.FormatInt(ms, 10))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(req Search) time.Duration {
	if req.Deadline > 0 {
		return req.Deadline
	}
	if req.MoveTime > 0 {
		return req.MoveTime + 2*time.Second
	}
	if req.Depth > 0 {
		base := time.Duration(req.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

func validateOptions(opt Options) error {
	if opt.Threads < 0 {
		return fmt.Errorf("threads must be >= 0: %d", opt.Threads)
	}
	if opt.HashMB < 0 {
		return fmt.Errorf("hash size must be >= 0: %d", opt.HashMB)
	}
	if opt.MultiPV < 0 {
		return fmt.Errorf("multipv must be >= 0: %d", opt.MultiPV)
	}
	for name, value := range opt.Extra {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "\r\n") {
			return fmt.Errorf("invalid option name %q", name)
		}
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("invalid value for option %q", name)
		}
	}
	return nil
}

func optionCommands(opt Options) []string {
	var cmds []string
	if opt.Threads > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Threads value %d\n", opt.Threads))
	}
	if opt.HashMB > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB))
	}
	if opt.MultiPV > 0 {
		cmds = append(cmds, fmt.Sprintf("setoption name MultiPV value %d\n", opt.MultiPV))
	}
	names := make([]string, 0, len(opt.Extra))
	for name := range opt.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmds = append(cmds, fmt.Sprintf("setoption name %s value %s\n", name, opt.Extra[name]))
	}
	return cmds
}
