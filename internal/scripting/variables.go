package scripting

import (
	"fmt"
	"math"

	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/dop251/goja"
)

// bonusGlobals exposes a BonusInput to a bonus formula. Durations are given
// in seconds (elapsed) and milliseconds (elapsed_ms).
func bonusGlobals(in session.BonusInput) map[string]any {
	return map[string]any{
		"elapsed":     in.Elapsed.Seconds(),
		"elapsed_ms":  in.Elapsed.Milliseconds(),
		"moves":       in.Moves,
		"score":       in.Score,
		"streak":      in.Streak,
		"max_streak":  in.MaxStreak,
		"rounds":      in.Rounds,
		"payout":      in.Payout,
		"reason":      string(in.Reason),
		"finished":    in.Reason == session.EndFinished,
		"signal_mean": in.SignalMean,
		"signal_peak": in.SignalPeak,
	}
}

func curveGlobals(streak int) map[string]any {
	return map[string]any{"streak": streak}
}

// --- Conversion helpers ---

// toFiniteFloat rejects results a payout cannot be built from.
func toFiniteFloat(v goja.Value) (float64, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, fmt.Errorf("formula returned no value")
	}
	f := v.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("formula returned %v", f)
	}
	return f, nil
}
