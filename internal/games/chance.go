package games

import (
	"strconv"
	"time"

	"github.com/MJE43/coin-reward-engine/internal/gate"
	"github.com/MJE43/coin-reward-engine/internal/prize"
	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/MJE43/coin-reward-engine/internal/session"
)

func luckyDraw() *Game {
	return &Game{
		Spec: Spec{
			ID:          "lucky-draw",
			Name:        "Lucky Draw",
			Kind:        KindChance,
			Description: "Pay for one draw from the prize drum.",
			Stake:       25,
		},
		Table: prize.MustTable([]prize.Entry{
			coinEntry("jackpot", "Jackpot", 0.01, 1000),
			coinEntry("big_win", "Big Win", 0.03, 500),
			coinEntry("great", "Great Prize", 0.08, 200),
			coinEntry("good", "Good Prize", 0.15, 100),
			coinEntry("nice", "Nice Prize", 0.25, 50),
			coinEntry("small", "Small Prize", 0.30, 25),
		}, prize.WithRemainder(1, coinEntry("try_again", "Try Again", 0, 0))),
		Config: session.Config{Rounds: 1, Curve: flat},
	}
}

// scratchCard pays out once all nine areas are scratched.
func scratchCard() *Game {
	return &Game{
		Spec: Spec{
			ID:          "scratch-card",
			Name:        "Scratch Card",
			Kind:        KindChance,
			Description: "Nine hidden areas per card; winnings are paid when the card is fully scratched.",
			Stake:       50,
		},
		Table: prize.MustTable([]prize.Entry{
			coinEntry("blank", "No Prize", 0.40, 0),
			coinEntry("p10", "10", 0.30, 10),
			coinEntry("p25", "25", 0.15, 25),
			coinEntry("p50", "50", 0.08, 50),
			coinEntry("p100", "100", 0.04, 100),
			coinEntry("p250", "250", 0.02, 250),
			coinEntry("p500", "500", 0.01, 500),
		}),
		Config: session.Config{Rounds: 9, Curve: flat, HoldPayouts: true},
	}
}

func spinWheel() *Game {
	segments := []int64{100, 50, 200, 25, 500, 10, 300, 75}
	entries := make([]prize.Entry, len(segments))
	for i, v := range segments {
		e := coinEntry("segment_"+strconv.Itoa(i), strconv.FormatInt(v, 10), 1, v)
		e.Metadata["segment"] = i
		entries[i] = e
	}
	return &Game{
		Spec: Spec{
			ID:          "spin-wheel",
			Name:        "Spin the Wheel",
			Kind:        KindChance,
			Description: "Three free spins over eight equal segments.",
		},
		Table:  prize.MustTable(entries),
		Config: session.Config{Rounds: 3, Curve: flat},
	}
}

func predictWin() *Game {
	return &Game{
		Spec: Spec{
			ID:          "predict-win",
			Name:        "Predict & Win",
			Kind:        KindChance,
			Description: "Stake on a yes/no prediction; correct calls pay the question's reward.",
			Stake:       25,
		},
		Table: prize.MustTable([]prize.Entry{
			coinEntry("correct", "Correct", 0.6, 50),
			coinEntry("wrong", "Wrong", 0.4, 0),
		}),
		Config: session.Config{Rounds: 1, Curve: flat},
	}
}

// timeCapsule is free but opens once per calendar day. Discount vouchers are
// items: they count for the streak but are not coins.
func timeCapsule() *Game {
	discount := func(id, name string, weight float64, pct int64) prize.Entry {
		e := coinEntry(id, name, weight, pct)
		e.Kind = prize.KindItem
		e.Metadata["discount_percent"] = pct
		return e
	}
	return &Game{
		Spec: Spec{
			ID:          "time-capsule",
			Name:        "Time Capsule",
			Kind:        KindDaily,
			Description: "Open one capsule a day.",
		},
		Table: prize.MustTable([]prize.Entry{
			coinEntry("nothing", "Nothing", 0.40, 0),
			coinEntry("coins_50", "50 Coins", 0.25, 50),
			coinEntry("coins_100", "100 Coins", 0.15, 100),
			discount("discount_10", "10% Discount", 0.10, 10),
			coinEntry("coins_200", "200 Coins", 0.07, 200),
			discount("discount_20", "20% Discount", 0.025, 20),
			coinEntry("jackpot", "JACKPOT", 0.005, 500),
		}),
		Config: session.Config{Rounds: 1, Curve: flat, Gate: gate.NewCalendar(time.UTC)},
	}
}

// shakeToWin pays a multiple of the stake. The shake itself is graded by the
// ladder for display; the draw decides the prize.
func shakeToWin() *Game {
	tier := func(id, name string, weight float64, mult int64) prize.Entry {
		e := coinEntry(id, name, weight, mult)
		e.PerStake = true
		return e
	}
	return &Game{
		Spec: Spec{
			ID:          "shake-to-win",
			Name:        "Shake to Win",
			Kind:        KindPerformance,
			Description: "Shake for three seconds; the mix pays up to 5x the stake.",
			Stake:       20,
		},
		Table: prize.MustTable([]prize.Entry{
			tier("perfect", "Perfect Mix", 0.05, 5),
			tier("great", "Great Blend", 0.15, 3),
			tier("good", "Good Shake", 0.30, 2),
			tier("basic", "Basic Mix", 0.40, 1),
			tier("failed", "Failed Mix", 0.10, 0),
		}),
		Config: session.Config{
			Rounds: 1,
			Curve:  flat,
			Ladder: &resolver.Ladder{
				Rungs: []resolver.Rung{
					{ID: "perfect", Threshold: resolver.Threshold(3), MinCount: 20},
					{ID: "great", Threshold: resolver.Threshold(2.5), MinCount: 15},
					{ID: "good", Threshold: resolver.Threshold(2), MinCount: 10},
					{ID: "basic", MinCount: 5},
				},
				Fallback: "failed",
			},
		},
	}
}
