package games

import (
	"sort"

	"github.com/MJE43/coin-reward-engine/internal/prize"
	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/shopspring/decimal"
)

// Reel symbols, each equally likely on each of the three reels.
var slotSymbols = []string{"cherry", "lemon", "orange", "bell", "star", "diamond", "seven"}

// Payouts in tenths of the bet.
var (
	slotTriples = map[string]int64{
		"diamond": 100,
		"seven":   50,
		"star":    25,
		"bell":    15,
		"orange":  10,
		"lemon":   8,
		"cherry":  5,
	}
	slotPairs = map[string]int64{
		"diamond": 10,
		"seven":   8,
		"star":    5,
		"bell":    3,
	}
	slotAnyCherry int64 = 2
)

// slotLine classifies one spin. A pair of a symbol without a pair payout
// (cherry, lemon, orange) pays nothing even if a cherry is showing; only
// spins with no pair at all fall through to the any-cherry rule.
func slotLine(a, b, c string) (id string, tenths int64) {
	switch {
	case a == b && b == c:
		return "triple_" + a, slotTriples[a]
	case a == b || b == c || a == c:
		sym := a
		if a != b && b == c {
			sym = b
		}
		if v, ok := slotPairs[sym]; ok {
			return "pair_" + sym, v
		}
		return "lose", 0
	case a == "cherry" || b == "cherry" || c == "cherry":
		return "any_cherry", slotAnyCherry
	default:
		return "lose", 0
	}
}

// slotTable enumerates all 343 reel combinations and weights each paying
// line by how many combinations produce it.
func slotTable() *prize.Table {
	counts := make(map[string]int)
	tenths := make(map[string]int64)
	var order []string
	for _, a := range slotSymbols {
		for _, b := range slotSymbols {
			for _, c := range slotSymbols {
				id, v := slotLine(a, b, c)
				if _, seen := counts[id]; !seen {
					order = append(order, id)
					tenths[id] = v
				}
				counts[id]++
			}
		}
	}

	// Highest payouts first, losing line last.
	sort.SliceStable(order, func(i, j int) bool { return tenths[order[i]] > tenths[order[j]] })

	ten := decimal.NewFromInt(10)
	entries := make([]prize.Entry, 0, len(order))
	for _, id := range order {
		entries = append(entries, prize.Entry{
			ID:       id,
			Weight:   float64(counts[id]),
			Value:    decimal.NewFromInt(tenths[id]).Div(ten),
			PerStake: true,
			Metadata: map[string]any{"combinations": counts[id]},
		})
	}
	return prize.MustTable(entries)
}

func slotMachine() *Game {
	return &Game{
		Spec: Spec{
			ID:          "slot-machine",
			Name:        "Slot Machine",
			Kind:        KindChance,
			Description: "Three reels of seven symbols; payouts scale with the bet.",
			Stake:       25,
			Stakes:      []int64{10, 25, 50, 100},
		},
		Table:  slotTable(),
		Config: session.Config{Rounds: 1, Curve: flat},
	}
}
