// Package resolver maps a uniform draw onto one entry of a prize table.
//
// The resolver never generates randomness itself. Callers pass a value in
// [0, 1) from whatever source they trust (see internal/engine), which keeps
// every resolution reproducible from its inputs.
package resolver

import (
	"errors"
	"fmt"
	"math"

	"github.com/MJE43/coin-reward-engine/internal/prize"
	"github.com/shopspring/decimal"
)

// ErrOutOfRange matches every *OutOfRangeError via errors.Is.
var ErrOutOfRange = errors.New("resolver: draw out of range")

// OutOfRangeError reports a draw outside [0, 1).
type OutOfRangeError struct {
	Draw float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("resolver: draw %v outside [0, 1)", e.Draw)
}

func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// Result is one resolved outcome.
type Result struct {
	Selected   prize.Entry     `json:"selected"`
	Index      int             `json:"index"`
	Draw       float64         `json:"draw"`
	RawValue   decimal.Decimal `json:"raw_value"`
	Multiplier decimal.Decimal `json:"multiplier"`
	FinalValue decimal.Decimal `json:"final_value"`
}

// Qualifying reports whether the outcome pays anything before multipliers.
func (r Result) Qualifying() bool {
	return r.RawValue.IsPositive()
}

// Coins returns FinalValue as whole coins.
func (r Result) Coins() int64 {
	return r.FinalValue.IntPart()
}

// Resolve picks the entry for draw r by scanning the table in order and
// accumulating weight/total; the first entry whose running total reaches r
// wins, so a zero-weight entry is never selected by the scan. If rounding
// leaves r above the final running total, the last entry is returned even
// when its weight is zero.
//
// RawValue and FinalValue are the entry's fixed value; use ResolveScaled to
// apply a stake and multiplier.
func Resolve(t *prize.Table, r float64) (Result, error) {
	return ResolveScaled(t, r, 1, decimal.NewFromInt(1))
}

// ResolveScaled is Resolve with the stake used for per-stake entries and a
// multiplier applied to the raw value. FinalValue is floored to whole
// coins.
func ResolveScaled(t *prize.Table, r float64, stake int64, multiplier decimal.Decimal) (Result, error) {
	idx, err := pick(t, r)
	if err != nil {
		return Result{}, err
	}
	res := Settle(t, idx, stake, multiplier)
	res.Draw = r
	return res, nil
}

// Settle builds the result for a known entry index without drawing. Skill
// games use it when the player's action, not chance, decides the outcome.
func Settle(t *prize.Table, index int, stake int64, multiplier decimal.Decimal) Result {
	e := t.Entry(index)
	raw := e.Raw(stake)
	return Result{
		Selected:   e,
		Index:      index,
		Draw:       -1,
		RawValue:   raw,
		Multiplier: multiplier,
		FinalValue: raw.Mul(multiplier).Floor(),
	}
}

func pick(t *prize.Table, r float64) (int, error) {
	if math.IsNaN(r) || r < 0 || r >= 1 {
		return 0, &OutOfRangeError{Draw: r}
	}

	total := t.TotalWeight()
	n := t.Len()
	var cumulative float64
	for i := 0; i < n; i++ {
		w := t.Entry(i).Weight
		if w == 0 {
			continue
		}
		cumulative += w / total
		if r <= cumulative {
			return i, nil
		}
	}

	return n - 1, nil
}

// Boundaries returns the running cumulative probability after each entry,
// computed the same way Resolve computes it. Entry i is selected for draws
// in (Boundaries[i-1], Boundaries[i]].
func Boundaries(t *prize.Table) []float64 {
	total := t.TotalWeight()
	out := make([]float64, t.Len())
	var cumulative float64
	for i := range out {
		cumulative += t.Entry(i).Weight / total
		out[i] = cumulative
	}
	return out
}
