package prize

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Kind says where a resolved value goes once it has been scaled.
type Kind string

const (
	// KindCoins values are credited to the wallet.
	KindCoins Kind = "coins"
	// KindItem values are non-coin rewards (vouchers, discounts). They count
	// towards streaks but are never credited.
	KindItem Kind = "item"
	// KindPoints values accumulate into the session score and are turned
	// into coins by the end-of-session bonus formula.
	KindPoints Kind = "points"
)

// Entry is one possible outcome of a draw.
type Entry struct {
	ID     string          `json:"id" yaml:"id"`
	Weight float64         `json:"weight" yaml:"weight"`
	Value  decimal.Decimal `json:"value" yaml:"-"`
	// PerStake makes Value a multiplier applied to the session stake
	// instead of a fixed coin amount.
	PerStake bool           `json:"per_stake,omitempty" yaml:"per_stake"`
	Kind     Kind           `json:"kind,omitempty" yaml:"kind"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

// Raw returns the entry's declared payout for the given stake, before any
// streak multiplier.
func (e Entry) Raw(stake int64) decimal.Decimal {
	if e.PerStake {
		return e.Value.Mul(decimal.NewFromInt(stake))
	}
	return e.Value
}

// EffectiveKind defaults an unset kind to coins.
func (e Entry) EffectiveKind() Kind {
	if e.Kind == "" {
		return KindCoins
	}
	return e.Kind
}

// Table is an immutable, ordered set of weighted entries. Order matters:
// the resolver scans entries in declaration order and falls back to the
// last one.
type Table struct {
	entries []Entry
	index   map[string]int
	total   float64
}

// Option adjusts table construction.
type Option func(*builder)

type builder struct {
	remainderTotal float64
	remainder      *Entry
}

// WithRemainder declares that the entries' weights are meant to sum to
// total and appends remainder carrying whatever mass is left over. The
// remainder must pay nothing. If the declared weights already reach total
// no entry is appended.
func WithRemainder(total float64, remainder Entry) Option {
	return func(b *builder) {
		b.remainderTotal = total
		r := remainder
		b.remainder = &r
	}
}

// NewTable validates entries and returns a table. It fails with an
// *InvalidTableError when the table is empty, a weight is negative or not
// finite, every weight is zero, or an ID is missing or repeated.
func NewTable(entries []Entry, opts ...Option) (*Table, error) {
	var b builder
	for _, opt := range opts {
		opt(&b)
	}

	if len(entries) == 0 && b.remainder == nil {
		return nil, invalid(-1, "table has no entries")
	}

	list := make([]Entry, 0, len(entries)+1)
	index := make(map[string]int, len(entries)+1)
	var total float64

	add := func(i int, e Entry) error {
		if e.ID == "" {
			return invalid(i, "entry has no id")
		}
		if _, dup := index[e.ID]; dup {
			return invalid(i, fmt.Sprintf("duplicate entry id %q", e.ID))
		}
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			return invalid(i, fmt.Sprintf("entry %q weight is not finite", e.ID))
		}
		if e.Weight < 0 {
			return invalid(i, fmt.Sprintf("entry %q has negative weight %v", e.ID, e.Weight))
		}
		switch e.Kind {
		case "", KindCoins, KindItem, KindPoints:
		default:
			return invalid(i, fmt.Sprintf("entry %q has unknown kind %q", e.ID, e.Kind))
		}
		index[e.ID] = len(list)
		list = append(list, e)
		total += e.Weight
		return nil
	}

	for i, e := range entries {
		if err := add(i, e); err != nil {
			return nil, err
		}
	}

	if b.remainder != nil {
		if !b.remainder.Value.IsZero() {
			return nil, invalid(len(entries), "remainder entry must have zero value")
		}
		missing := b.remainderTotal - total
		const eps = 1e-9
		if missing < -eps {
			return nil, invalid(-1, fmt.Sprintf("declared weights %v exceed remainder total %v", total, b.remainderTotal))
		}
		if missing > eps {
			r := *b.remainder
			r.Weight = missing
			if err := add(len(entries), r); err != nil {
				return nil, err
			}
		}
	}

	if total <= 0 {
		return nil, invalid(-1, "all weights are zero")
	}

	return &Table{entries: list, index: index, total: total}, nil
}

// MustTable is NewTable for package-level tables that are known to be valid.
func MustTable(entries []Entry, opts ...Option) *Table {
	t, err := NewTable(entries, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// TotalWeight returns the sum of all entry weights.
func (t *Table) TotalWeight() float64 {
	return t.total
}

// Entries returns the entries in declaration order. The slice is a copy.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entry returns the i-th entry.
func (t *Table) Entry(i int) Entry {
	return t.entries[i]
}

// Lookup finds an entry by ID.
func (t *Table) Lookup(id string) (Entry, int, bool) {
	i, ok := t.index[id]
	if !ok {
		return Entry{}, -1, false
	}
	return t.entries[i], i, true
}

// Probability returns weight/total for the i-th entry.
func (t *Table) Probability(i int) float64 {
	return t.entries[i].Weight / t.total
}

// ExpectedValue returns the mean coin payout of one draw at the given stake,
// ignoring streak multipliers. Only coin entries contribute.
func (t *Table) ExpectedValue(stake int64) decimal.Decimal {
	sum := decimal.Zero
	total := decimal.NewFromFloat(t.total)
	for _, e := range t.entries {
		if e.EffectiveKind() != KindCoins || e.Weight == 0 {
			continue
		}
		sum = sum.Add(e.Raw(stake).Mul(decimal.NewFromFloat(e.Weight)))
	}
	return sum.Div(total)
}

// HitRate returns the probability of a qualifying (positive value) outcome.
func (t *Table) HitRate() float64 {
	var hit float64
	for _, e := range t.entries {
		if e.Value.IsPositive() {
			hit += e.Weight
		}
	}
	return hit / t.total
}
