package chess

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultTimeBudget = 1500 * time.Millisecond
	DefaultMinBudget  = 100 * time.Millisecond
	DefaultMaxBudget  = 30 * time.Second

	minReserve = 50 * time.Millisecond
	maxReserve = time.Second
	maxDepth   = 99
)

var (
	ErrBudgetOutOfRange = errors.New("time budget out of range")
	ErrInvalidDepth     = errors.New("invalid search depth")
)

// BudgetLimits bounds the wall-clock time a caller may ask for.
type BudgetLimits struct {
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// Normalized fills unset bounds with the defaults and keeps Default inside
// [Min, Max].
func (l BudgetLimits) Normalized() BudgetLimits {
	if l.Default <= 0 {
		l.Default = DefaultTimeBudget
	}
	if l.Min <= 0 {
		l.Min = DefaultMinBudget
	}
	if l.Max <= 0 {
		l.Max = DefaultMaxBudget
	}
	if l.Max < l.Min {
		l.Max = l.Min
	}
	if l.Default < l.Min {
		l.Default = l.Min
	}
	if l.Default > l.Max {
		l.Default = l.Max
	}
	return l
}

// NormalizeBudget resolves a requested budget. Zero selects the default.
func (l BudgetLimits) NormalizeBudget(budget time.Duration) (time.Duration, error) {
	l = l.Normalized()
	if budget == 0 {
		return l.Default, nil
	}
	if budget < l.Min || budget > l.Max {
		return 0, fmt.Errorf("%w: %s not in [%s, %s]", ErrBudgetOutOfRange, budget, l.Min, l.Max)
	}
	return budget, nil
}

// MoveTimeFor is the movetime sent with "go" for a budget. The remainder of
// the budget is left for the engine to flush its bestmove line.
func MoveTimeFor(budget time.Duration) time.Duration {
	reserve := budget / 3
	if reserve < minReserve {
		reserve = minReserve
	}
	if reserve > maxReserve {
		reserve = maxReserve
	}
	mt := budget - reserve
	if mt < time.Millisecond {
		mt = time.Millisecond
	}
	return mt
}

func validateDepth(depth int) error {
	if depth < 0 || depth > maxDepth {
		return fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	return nil
}
