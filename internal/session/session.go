// Package session turns resolved prizes into payouts and drives the
// lifecycle of one play session: stake, rounds, streaks, time boxes and the
// end-of-session bonus.
//
// A Tracker is owned by a single caller. It never starts goroutines or
// timers; time only moves when the caller calls Tick.
package session

import (
	"fmt"
	"math"
	"time"

	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a Tracker.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusActive    Status = "active"
	StatusResolving Status = "resolving"
	StatusComplete  Status = "complete"
)

// EndReason records why a session completed.
type EndReason string

const (
	EndNone EndReason = ""
	// EndRounds: the configured round count ran out.
	EndRounds EndReason = "rounds_exhausted"
	// EndTime: Tick drained the time box.
	EndTime EndReason = "time_exhausted"
	// EndFinished: the caller signalled a terminal condition such as all
	// pairs matched or all treasures found.
	EndFinished EndReason = "finished"
	// EndBust: the caller signalled a losing terminal condition. Held
	// winnings are forfeited and no bonus is paid.
	EndBust EndReason = "bust"
)

// DeltaReason labels a wallet delta.
type DeltaReason string

const (
	ReasonStake      DeltaReason = "stake"
	ReasonRound      DeltaReason = "round"
	ReasonCompletion DeltaReason = "completion"
)

// Delta is one signed coin movement reported to the wallet. Each tracker
// operation reports at most one delta; Amount is the sum of the breakdown
// fields (negative for stakes).
type Delta struct {
	Account   string      `json:"account"`
	SessionID string      `json:"session_id"`
	Game      string      `json:"game,omitempty"`
	Round     int         `json:"round"`
	Reason    DeltaReason `json:"reason"`
	Amount    int64       `json:"amount"`
	Payout    int64       `json:"payout,omitempty"`
	Released  int64       `json:"released,omitempty"`
	Bonus     int64       `json:"bonus,omitempty"`
}

// Wallet receives coin deltas. The tracker never holds a balance itself.
type Wallet interface {
	Apply(Delta) error
}

// WalletFunc adapts a function to Wallet.
type WalletFunc func(Delta) error

func (f WalletFunc) Apply(d Delta) error { return f(d) }

// Discard is a Wallet that accepts every delta.
var Discard Wallet = WalletFunc(func(Delta) error { return nil })

// Gate answers whether a once-per-day game may be played again.
type Gate interface {
	Now() time.Time
	HasReset(since time.Time) bool
}

// Curve maps a streak to a payout multiplier before the ceiling is applied.
type Curve interface {
	Multiplier(streak int) float64
}

// CurveFunc adapts a function to Curve.
type CurveFunc func(streak int) float64

func (f CurveFunc) Multiplier(streak int) float64 { return f(streak) }

// Linear is Base + Step*streak.
type Linear struct {
	Base float64 `json:"base" yaml:"base"`
	Step float64 `json:"step" yaml:"step"`
}

func (l Linear) Multiplier(streak int) float64 {
	return l.Base + l.Step*float64(streak)
}

// Steps looks the multiplier up by streak; streaks past the end use the
// last step.
type Steps []float64

func (s Steps) Multiplier(streak int) float64 {
	if len(s) == 0 {
		return 1
	}
	if streak >= len(s) {
		streak = len(s) - 1
	}
	return s[streak]
}

// BonusInput is what an end-of-session bonus formula sees.
type BonusInput struct {
	Elapsed    time.Duration `json:"elapsed"`
	Moves      int           `json:"moves"`
	Score      int64         `json:"score"`
	Streak     int           `json:"streak"`
	MaxStreak  int           `json:"max_streak"`
	Rounds     int           `json:"rounds"`
	Payout     int64         `json:"payout"`
	Reason     EndReason     `json:"reason"`
	SignalMean float64       `json:"signal_mean"`
	SignalPeak float64       `json:"signal_peak"`
}

// BonusFunc computes coins paid once when a session completes. Negative
// results are treated as zero.
type BonusFunc func(BonusInput) (int64, error)

// DefaultCeiling caps the combo multiplier when Config.Ceiling is zero.
const DefaultCeiling = 5

// Config holds the lifecycle parameters of one game.
type Config struct {
	// Rounds is the number of resolves per session; 0 means unlimited.
	Rounds int `json:"rounds" yaml:"rounds"`
	// Duration is the time box driven by Tick; 0 means none.
	Duration time.Duration `json:"duration" yaml:"duration"`
	// Ceiling caps the multiplier. 0 means DefaultCeiling.
	Ceiling float64 `json:"ceiling" yaml:"ceiling"`
	// Curve defaults to Linear{Base: 0, Step: 1}.
	Curve Curve `json:"-" yaml:"-"`
	// StreakBonus adds StreakBonus*streak coins to each qualifying outcome,
	// using the streak before it is incremented.
	StreakBonus int64 `json:"streak_bonus" yaml:"streak_bonus"`
	// DecayWindow resets the streak when this much Tick time passes without
	// a qualifying outcome.
	DecayWindow time.Duration `json:"decay_window" yaml:"decay_window"`
	// HoldPayouts keeps coin winnings pending until the session completes.
	HoldPayouts bool `json:"hold_payouts" yaml:"hold_payouts"`
	// BustOn and FinishOn list entry IDs that end the session when drawn,
	// as if the round had been submitted WithBust or WithTerminal.
	BustOn   []string `json:"bust_on,omitempty" yaml:"bust_on"`
	FinishOn []string `json:"finish_on,omitempty" yaml:"finish_on"`
	// Deplete draws without replacement: entry weights are counts, and each
	// round removes one from the selected entry for the rest of the session.
	// The session finishes once every qualifying entry is drawn out.
	Deplete bool             `json:"deplete,omitempty" yaml:"deplete"`
	Bonus   BonusFunc        `json:"-" yaml:"-"`
	Ladder  *resolver.Ladder `json:"-" yaml:"-"`
	Gate    Gate             `json:"-" yaml:"-"`
}

func (c Config) validate() error {
	switch {
	case c.Rounds < 0:
		return fmt.Errorf("%w: negative rounds %d", ErrInvalidConfig, c.Rounds)
	case c.Duration < 0:
		return fmt.Errorf("%w: negative duration %s", ErrInvalidConfig, c.Duration)
	case math.IsNaN(c.Ceiling) || c.Ceiling < 0 || (c.Ceiling > 0 && c.Ceiling < 1):
		return fmt.Errorf("%w: ceiling %v below 1", ErrInvalidConfig, c.Ceiling)
	case c.StreakBonus < 0:
		return fmt.Errorf("%w: negative streak bonus %d", ErrInvalidConfig, c.StreakBonus)
	case c.DecayWindow < 0:
		return fmt.Errorf("%w: negative decay window %s", ErrInvalidConfig, c.DecayWindow)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Ceiling == 0 {
		c.Ceiling = DefaultCeiling
	}
	if c.Curve == nil {
		c.Curve = Linear{Base: 0, Step: 1}
	}
	return c
}

// State is the mutable part of a session.
type State struct {
	SessionID        string          `json:"session_id"`
	Stake            int64           `json:"stake"`
	Streak           int             `json:"streak"`
	MaxStreak        int             `json:"max_streak"`
	ComboMultiplier  decimal.Decimal `json:"combo_multiplier"`
	RoundsPlayed     int             `json:"rounds_played"`
	RoundsRemaining  int             `json:"rounds_remaining"`
	TimeRemaining    time.Duration   `json:"time_remaining"`
	Elapsed          time.Duration   `json:"elapsed"`
	CumulativeStake  int64           `json:"cumulative_stake"`
	CumulativePayout int64           `json:"cumulative_payout"`
	Pending          int64           `json:"pending"`
	Score            int64           `json:"score"`
	SignalMean       float64         `json:"signal_mean"`
	SignalPeak       float64         `json:"signal_peak"`

	signalSum   float64
	signalCount int
	idle        time.Duration
	// drawn counts draws per entry when the config depletes.
	drawn []float64
}

// Outcome is the result of one SubmitResolve or SubmitOutcome call.
type Outcome struct {
	Round  int             `json:"round"`
	Result resolver.Result `json:"result"`
	// Tier is the performance ladder's reading of the signal. It is
	// informational; the draw decides the prize.
	Tier        string    `json:"tier,omitempty"`
	StreakBonus int64     `json:"streak_bonus"`
	Credited    int64     `json:"credited"`
	Held        int64     `json:"held"`
	Points      int64     `json:"points"`
	Item        string    `json:"item,omitempty"`
	Released    int64     `json:"released"`
	Bonus       int64     `json:"bonus"`
	Delta       int64     `json:"delta"`
	Complete    bool      `json:"complete"`
	Reason      EndReason `json:"reason,omitempty"`
	State       State     `json:"state"`
}

// Summary describes a completed session.
type Summary struct {
	SessionID    string        `json:"session_id"`
	Account      string        `json:"account,omitempty"`
	Game         string        `json:"game,omitempty"`
	Reason       EndReason     `json:"reason"`
	Stake        int64         `json:"stake"`
	Payout       int64         `json:"payout"`
	Net          int64         `json:"net"`
	Bonus        int64         `json:"bonus"`
	Forfeited    int64         `json:"forfeited"`
	Score        int64         `json:"score"`
	Streak       int           `json:"streak"`
	MaxStreak    int           `json:"max_streak"`
	RoundsPlayed int           `json:"rounds_played"`
	Elapsed      time.Duration `json:"elapsed"`
}
