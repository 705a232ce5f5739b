package session

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/MJE43/coin-reward-engine/internal/prize"
	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tracker runs sessions of one game against one prize table.
type Tracker struct {
	table  *prize.Table
	wallet Wallet
	cfg    Config

	account   string
	game      string
	newID     func() string
	lastGated time.Time

	status  Status
	state   State
	summary Summary
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithAccount tags every delta with the wallet account.
func WithAccount(account string) Option {
	return func(t *Tracker) { t.account = account }
}

// WithGame tags deltas and summaries with the game ID.
func WithGame(game string) Option {
	return func(t *Tracker) { t.game = game }
}

// WithIDGenerator replaces the uuid session ID generator.
func WithIDGenerator(f func() string) Option {
	return func(t *Tracker) { t.newID = f }
}

// WithLastGatedStart seeds the time of the previous gated start, for
// trackers rebuilt from persisted history.
func WithLastGatedStart(at time.Time) Option {
	return func(t *Tracker) { t.lastGated = at }
}

// NewTracker returns an idle tracker. A nil wallet discards deltas.
func NewTracker(table *prize.Table, wallet Wallet, cfg Config, opts ...Option) (*Tracker, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil prize table", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if wallet == nil {
		wallet = Discard
	}
	if cfg.Deplete {
		for _, e := range table.Entries() {
			if e.Weight != math.Trunc(e.Weight) {
				return nil, fmt.Errorf("%w: depleting table needs whole weights, %s has %v", ErrInvalidConfig, e.ID, e.Weight)
			}
		}
	}

	t := &Tracker{
		table:  table,
		wallet: wallet,
		cfg:    cfg.withDefaults(),
		newID:  uuid.NewString,
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Status returns the lifecycle state.
func (t *Tracker) Status() Status { return t.status }

// State returns a copy of the current session state.
func (t *Tracker) State() State { return t.state }

// Table returns the prize table the tracker resolves against.
func (t *Tracker) Table() *prize.Table { return t.table }

// Start begins a new session, replacing any completed one. balance is the
// caller's known wallet balance; the tracker does not own it.
func (t *Tracker) Start(stake, balance int64) (State, error) {
	if t.status != StatusIdle && t.status != StatusComplete {
		return State{}, &InvalidStateTransitionError{Op: "start", From: t.status}
	}
	if stake < 0 {
		return State{}, fmt.Errorf("%w: negative stake %d", ErrInvalidArgument, stake)
	}
	if balance < stake {
		return State{}, &InsufficientStakeError{Stake: stake, Balance: balance}
	}

	var gatedAt time.Time
	if g := t.cfg.Gate; g != nil {
		if !t.lastGated.IsZero() && !g.HasReset(t.lastGated) {
			return State{}, &GateClosedError{LastStart: t.lastGated}
		}
		gatedAt = g.Now()
	}

	next := State{
		SessionID:       t.newID(),
		Stake:           stake,
		RoundsRemaining: t.cfg.Rounds,
		TimeRemaining:   t.cfg.Duration,
		CumulativeStake: stake,
	}
	next.ComboMultiplier = t.multiplier(0)

	prev := t.status
	t.status = StatusResolving
	err := t.report(Delta{
		SessionID: next.SessionID,
		Reason:    ReasonStake,
		Amount:    -stake,
	})
	if err != nil {
		t.status = prev
		return State{}, err
	}

	t.state = next
	t.summary = Summary{}
	if t.cfg.Gate != nil {
		t.lastGated = gatedAt
	}
	t.status = StatusActive
	return t.state, nil
}

// SubmitOption modifies a single resolve.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	signal   *resolver.Signal
	terminal bool
	bust     bool
}

// WithSignal attaches a performance signal (shake intensity, tap count) to
// the round.
func WithSignal(s resolver.Signal) SubmitOption {
	return func(o *submitOptions) { o.signal = &s }
}

// WithTerminal completes the session after this round.
func WithTerminal() SubmitOption {
	return func(o *submitOptions) { o.terminal = true }
}

// WithBust completes the session after this round and forfeits held
// winnings.
func WithBust() SubmitOption {
	return func(o *submitOptions) { o.bust = true }
}

// SubmitResolve resolves draw r against the table, applies the streak
// multiplier, and reports the payout.
func (t *Tracker) SubmitResolve(r float64, opts ...SubmitOption) (Outcome, error) {
	if t.status != StatusActive {
		return Outcome{}, &InvalidStateTransitionError{Op: "resolve", From: t.status}
	}
	res, err := t.draw(r)
	if err != nil {
		return Outcome{}, err
	}
	return t.settle(res, opts)
}

// draw resolves r against the table, or against what is left of it when the
// config depletes.
func (t *Tracker) draw(r float64) (resolver.Result, error) {
	mult := t.multiplier(t.state.Streak)
	if !t.cfg.Deplete || t.state.drawn == nil {
		return resolver.ResolveScaled(t.table, r, t.state.Stake, mult)
	}

	entries := t.table.Entries()
	for i := range entries {
		entries[i].Weight -= t.state.drawn[i]
	}
	left, err := prize.NewTable(entries)
	if err != nil {
		return resolver.Result{}, fmt.Errorf("%w: nothing left to draw", ErrInvalidArgument)
	}
	res, err := resolver.ResolveScaled(left, r, t.state.Stake, mult)
	if err != nil {
		return resolver.Result{}, err
	}
	idx := res.Index
	// The rounding fallback may land on a spent entry.
	for idx > 0 && left.Entry(idx).Weight == 0 {
		idx--
	}
	res = resolver.Settle(t.table, idx, t.state.Stake, mult)
	res.Draw = r
	return res, nil
}

// SubmitOutcome settles a round whose entry the caller already knows, such
// as a correct trivia answer or a missed mole. Streak, payout and lifecycle
// rules are the same as SubmitResolve.
func (t *Tracker) SubmitOutcome(entryID string, opts ...SubmitOption) (Outcome, error) {
	if t.status != StatusActive {
		return Outcome{}, &InvalidStateTransitionError{Op: "submit outcome", From: t.status}
	}
	_, idx, ok := t.table.Lookup(entryID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownEntry, entryID)
	}
	if t.cfg.Deplete && t.state.drawn != nil && t.table.Entry(idx).Weight-t.state.drawn[idx] <= 0 {
		return Outcome{}, fmt.Errorf("%w: %q is drawn out", ErrInvalidArgument, entryID)
	}
	return t.settle(resolver.Settle(t.table, idx, t.state.Stake, t.multiplier(t.state.Streak)), opts)
}

func (t *Tracker) settle(res resolver.Result, opts []SubmitOption) (Outcome, error) {
	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}

	t.status = StatusResolving
	next := t.state
	out := Outcome{Round: next.RoundsPlayed + 1, Result: res}

	if so.signal != nil {
		next.observe(*so.signal)
		out.Tier = t.cfg.Ladder.Classify(*so.signal)
	}

	if res.Qualifying() {
		out.StreakBonus = t.cfg.StreakBonus * int64(next.Streak)
		next.Streak++
		if next.Streak > next.MaxStreak {
			next.MaxStreak = next.Streak
		}
		next.idle = 0
	} else {
		next.Streak = 0
	}

	value := res.Coins() + out.StreakBonus
	switch res.Selected.EffectiveKind() {
	case prize.KindCoins:
		if t.cfg.HoldPayouts {
			next.Pending += value
			out.Held = value
		} else {
			next.CumulativePayout += value
			out.Credited = value
		}
	case prize.KindPoints:
		next.Score += value
		out.Points = value
	case prize.KindItem:
		out.Item = res.Selected.ID
	}

	if t.cfg.Deplete {
		drawn := make([]float64, t.table.Len())
		copy(drawn, next.drawn)
		drawn[res.Index]++
		next.drawn = drawn
	}

	next.RoundsPlayed = out.Round
	if t.cfg.Rounds > 0 {
		next.RoundsRemaining--
	}
	next.ComboMultiplier = t.multiplier(next.Streak)

	reason := EndNone
	switch id := res.Selected.ID; {
	case so.bust || slices.Contains(t.cfg.BustOn, id):
		reason = EndBust
	case so.terminal || slices.Contains(t.cfg.FinishOn, id):
		reason = EndFinished
	case t.cfg.Deplete && t.exhausted(next.drawn):
		reason = EndFinished
	case t.cfg.Rounds > 0 && next.RoundsRemaining <= 0:
		reason = EndRounds
	}

	delta := Delta{
		SessionID: next.SessionID,
		Round:     out.Round,
		Reason:    ReasonRound,
		Payout:    out.Credited,
	}
	var fs finishSummary
	if reason != EndNone {
		var err error
		if fs, err = t.finish(&next, reason); err != nil {
			t.status = StatusActive
			return Outcome{}, err
		}
		delta.Released = fs.released
		delta.Bonus = fs.Bonus
	}
	delta.Amount = delta.Payout + delta.Released + delta.Bonus

	if err := t.report(delta); err != nil {
		t.status = StatusActive
		return Outcome{}, err
	}

	out.Released = delta.Released
	out.Bonus = delta.Bonus
	out.Delta = delta.Amount
	out.Complete = reason != EndNone
	out.Reason = reason
	t.commit(next, fs, reason)
	out.State = t.state
	return out, nil
}

// Tick advances session time by elapsed. It drains the time box, decays an
// idle streak, and completes the session when time runs out.
func (t *Tracker) Tick(elapsed time.Duration) (State, error) {
	if t.status != StatusActive {
		return State{}, &InvalidStateTransitionError{Op: "tick", From: t.status}
	}
	if elapsed < 0 {
		return State{}, fmt.Errorf("%w: negative elapsed %s", ErrInvalidArgument, elapsed)
	}

	t.status = StatusResolving
	next := t.state
	next.Elapsed += elapsed
	if t.cfg.Duration > 0 {
		next.TimeRemaining -= elapsed
		if next.TimeRemaining < 0 {
			next.TimeRemaining = 0
		}
	}
	if t.cfg.DecayWindow > 0 && next.Streak > 0 {
		next.idle += elapsed
		if next.idle >= t.cfg.DecayWindow {
			next.Streak = 0
			next.idle = 0
		}
	}
	next.ComboMultiplier = t.multiplier(next.Streak)

	reason := EndNone
	if t.cfg.Duration > 0 && next.TimeRemaining == 0 {
		reason = EndTime
	}
	if err := t.complete(next, reason); err != nil {
		return State{}, err
	}
	return t.state, nil
}

// End completes the session outside a resolve. reason must be EndFinished
// or EndBust.
func (t *Tracker) End(reason EndReason) (Summary, error) {
	if t.status != StatusActive {
		return Summary{}, &InvalidStateTransitionError{Op: "end", From: t.status}
	}
	if reason != EndFinished && reason != EndBust {
		return Summary{}, fmt.Errorf("%w: end reason %q", ErrInvalidArgument, reason)
	}

	t.status = StatusResolving
	if err := t.complete(t.state, reason); err != nil {
		return Summary{}, err
	}
	return t.summary, nil
}

// Summary returns the completed session's totals. It fails unless the
// session is complete and returns the same value on every call.
func (t *Tracker) Summary() (Summary, error) {
	if t.status != StatusComplete {
		return Summary{}, &InvalidStateTransitionError{Op: "summarize", From: t.status}
	}
	return t.summary, nil
}

// complete commits next, finishing the session first when reason is set.
// It expects status to be Resolving and restores Active on failure.
func (t *Tracker) complete(next State, reason EndReason) error {
	if reason == EndNone {
		t.commit(next, finishSummary{}, reason)
		return nil
	}

	fs, err := t.finish(&next, reason)
	if err != nil {
		t.status = StatusActive
		return err
	}
	err = t.report(Delta{
		SessionID: next.SessionID,
		Round:     next.RoundsPlayed,
		Reason:    ReasonCompletion,
		Released:  fs.released,
		Bonus:     fs.Bonus,
		Amount:    fs.released + fs.Bonus,
	})
	if err != nil {
		t.status = StatusActive
		return err
	}
	t.commit(next, fs, reason)
	return nil
}

type finishSummary struct {
	Summary
	released int64
}

// finish settles held winnings and the bonus into next.
func (t *Tracker) finish(next *State, reason EndReason) (finishSummary, error) {
	var fs finishSummary
	if reason == EndBust {
		fs.Forfeited = next.Pending
		next.Pending = 0
	} else {
		fs.released = next.Pending
		next.CumulativePayout += next.Pending
		next.Pending = 0

		if t.cfg.Bonus != nil {
			bonus, err := t.cfg.Bonus(BonusInput{
				Elapsed:    next.Elapsed,
				Moves:      next.RoundsPlayed,
				Score:      next.Score,
				Streak:     next.Streak,
				MaxStreak:  next.MaxStreak,
				Rounds:     next.RoundsPlayed,
				Payout:     next.CumulativePayout,
				Reason:     reason,
				SignalMean: next.SignalMean,
				SignalPeak: next.SignalPeak,
			})
			if err != nil {
				return finishSummary{}, fmt.Errorf("session: bonus: %w", err)
			}
			if bonus > 0 {
				fs.Bonus = bonus
				next.CumulativePayout += bonus
			}
		}
	}

	fs.SessionID = next.SessionID
	fs.Account = t.account
	fs.Game = t.game
	fs.Reason = reason
	fs.Stake = next.CumulativeStake
	fs.Payout = next.CumulativePayout
	fs.Net = next.CumulativePayout - next.CumulativeStake
	fs.Score = next.Score
	fs.Streak = next.Streak
	fs.MaxStreak = next.MaxStreak
	fs.RoundsPlayed = next.RoundsPlayed
	fs.Elapsed = next.Elapsed
	return fs, nil
}

func (t *Tracker) commit(next State, fs finishSummary, reason EndReason) {
	t.state = next
	if reason == EndNone {
		t.status = StatusActive
		return
	}
	t.summary = fs.Summary
	t.status = StatusComplete
}

// report sends d to the wallet unless it moves no coins.
func (t *Tracker) report(d Delta) error {
	if d.Amount == 0 {
		return nil
	}
	d.Account = t.account
	d.Game = t.game
	if err := t.wallet.Apply(d); err != nil {
		return fmt.Errorf("session: wallet rejected %s delta: %w", d.Reason, err)
	}
	return nil
}

// multiplier evaluates the curve for streak and clamps it to [1, Ceiling].
// exhausted reports whether no qualifying entry, or nothing at all, is
// left to draw.
func (t *Tracker) exhausted(drawn []float64) bool {
	var left, qualifying float64
	for i, e := range t.table.Entries() {
		w := e.Weight - drawn[i]
		left += w
		if e.Value.IsPositive() {
			qualifying += w
		}
	}
	return left <= 0 || qualifying <= 0
}

func (t *Tracker) multiplier(streak int) decimal.Decimal {
	m := t.cfg.Curve.Multiplier(streak)
	if math.IsNaN(m) || m < 1 {
		m = 1
	}
	if m > t.cfg.Ceiling {
		m = t.cfg.Ceiling
	}
	return decimal.NewFromFloat(m)
}

func (s *State) observe(sig resolver.Signal) {
	s.signalSum += sig.Value
	s.signalCount++
	s.SignalMean = s.signalSum / float64(s.signalCount)
	if s.signalCount == 1 || sig.Value > s.SignalPeak {
		s.SignalPeak = sig.Value
	}
}
