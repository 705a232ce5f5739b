// Package simulate plays many seeded sessions of a game in parallel and
// reports how its prize table behaves in practice.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/MJE43/coin-reward-engine/internal/engine"
	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/session"
)

// EngineVersion is stamped on every result.
var EngineVersion = "dev"

var (
	ErrGameNotFound   = errors.New("simulate: game not found")
	ErrInvalidRequest = errors.New("simulate: invalid request")
)

const (
	// DefaultMaxRounds stops sessions of games with no round limit.
	DefaultMaxRounds = 100
	// MaxSessions bounds a single run.
	MaxSessions = 10_000_000

	batchSize = 1024
)

// Request describes a simulation run. Session i draws from nonce
// NonceStart+i, consuming successive floats of that nonce's stream one
// round at a time. Unseeded runs draw from crypto/rand instead and cannot
// be replayed.
type Request struct {
	Game       string       `json:"game"`
	Seeds      engine.Seeds `json:"seeds"`
	Unseeded   bool         `json:"unseeded,omitempty"`
	NonceStart uint64       `json:"nonce_start"`
	Sessions   int          `json:"sessions"`
	Stake      int64        `json:"stake,omitempty"`
	MaxRounds  int          `json:"max_rounds,omitempty"`
	// RoundTime is ticked after every round for time-boxed games.
	RoundTime time.Duration `json:"round_time,omitempty"`
	TimeoutMs int           `json:"timeout_ms,omitempty"`
}

// EntryStat compares how often an entry was drawn with its table
// probability.
type EntryStat struct {
	ID        string  `json:"id"`
	Count     uint64  `json:"count"`
	Frequency float64 `json:"frequency"`
	Expected  float64 `json:"expected"`
}

// Summary contains aggregate statistics.
type Summary struct {
	Sessions    uint64                       `json:"sessions"`
	Rounds      uint64                       `json:"rounds"`
	TotalStake  int64                        `json:"total_stake"`
	TotalPayout int64                        `json:"total_payout"`
	TotalBonus  int64                        `json:"total_bonus"`
	Forfeited   int64                        `json:"forfeited"`
	RTP         float64                      `json:"rtp"`
	HitRate     float64                      `json:"hit_rate"`
	MaxStreak   int                          `json:"max_streak"`
	MinPayout   int64                        `json:"min_payout"`
	MaxPayout   int64                        `json:"max_payout"`
	MeanPayout  float64                      `json:"mean_payout"`
	Ends        map[session.EndReason]uint64 `json:"ends"`
	TimedOut    bool                         `json:"timed_out,omitempty"`
}

// Result contains the complete simulation results.
type Result struct {
	Summary       Summary     `json:"summary"`
	Entries       []EntryStat `json:"entries"`
	EngineVersion string      `json:"engine_version"`
	Echo          Request     `json:"echo"`
}

// Simulator runs requests over a fixed worker pool size.
type Simulator struct {
	workerCount int
	log         zerolog.Logger
}

// New returns a simulator. workers <= 0 uses GOMAXPROCS.
func New(log zerolog.Logger, workers int) *Simulator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Simulator{workerCount: workers, log: log}
}

// job is a batch of session indexes [start, end).
type job struct {
	start, end uint64
}

// tally is one worker's running totals.
type tally struct {
	sessions  uint64
	rounds    uint64
	hits      uint64
	stake     int64
	payout    int64
	bonus     int64
	forfeited int64
	maxStreak int
	minPayout int64
	maxPayout int64
	entries   []uint64
	ends      map[session.EndReason]uint64
}

func newTally(entries int) *tally {
	return &tally{
		minPayout: math.MaxInt64,
		entries:   make([]uint64, entries),
		ends:      make(map[session.EndReason]uint64),
	}
}

func (t *tally) merge(o *tally) {
	t.sessions += o.sessions
	t.rounds += o.rounds
	t.hits += o.hits
	t.stake += o.stake
	t.payout += o.payout
	t.bonus += o.bonus
	t.forfeited += o.forfeited
	t.maxStreak = max(t.maxStreak, o.maxStreak)
	t.minPayout = min(t.minPayout, o.minPayout)
	t.maxPayout = max(t.maxPayout, o.maxPayout)
	for i, c := range o.entries {
		t.entries[i] += c
	}
	for r, c := range o.ends {
		t.ends[r] += c
	}
}

// Run plays req.Sessions sessions. Cancellation or timeout stops the run
// early and returns the partial result with TimedOut set.
func (s *Simulator) Run(ctx context.Context, req Request) (*Result, error) {
	g, cfg, err := prepare(&req)
	if err != nil {
		return nil, err
	}
	if req.Sessions <= 0 || req.Sessions > MaxSessions {
		return nil, fmt.Errorf("%w: sessions must be between 1 and %d", ErrInvalidRequest, MaxSessions)
	}

	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	started := time.Now()
	jobs := make(chan job, s.workerCount*2)
	results := make(chan *tally, s.workerCount)
	var failed atomic.Pointer[error]
	var wg sync.WaitGroup

	workers := make([]*worker, s.workerCount)
	for i := range workers {
		tr, err := session.NewTracker(g.Table, session.Discard, cfg, session.WithGame(g.ID))
		if err != nil {
			return nil, err
		}
		workers[i] = &worker{
			id:      i,
			req:     req,
			tracker: tr,
			jobs:    jobs,
			failed:  &failed,
		}
	}
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- w.run(runCtx, g.Table.Len())
		}()
	}

	go generateJobs(runCtx, jobs, uint64(req.Sessions))
	go func() {
		wg.Wait()
		close(results)
	}()

	total := newTally(g.Table.Len())
	for t := range results {
		total.merge(t)
	}
	if p := failed.Load(); p != nil {
		return nil, *p
	}

	res := &Result{
		Summary:       summarize(total),
		Entries:       make([]EntryStat, g.Table.Len()),
		EngineVersion: EngineVersion,
		Echo:          req,
	}
	res.Summary.TimedOut = ctx.Err() != nil && total.sessions < uint64(req.Sessions)
	for i, e := range g.Table.Entries() {
		st := EntryStat{ID: e.ID, Count: total.entries[i], Expected: g.Table.Probability(i)}
		if total.rounds > 0 {
			st.Frequency = float64(st.Count) / float64(total.rounds)
		}
		res.Entries[i] = st
	}

	s.log.Debug().
		Str("game", req.Game).
		Uint64("sessions", res.Summary.Sessions).
		Float64("rtp", res.Summary.RTP).
		Bool("timed_out", res.Summary.TimedOut).
		Dur("took", time.Since(started)).
		Msg("simulation complete")
	return res, nil
}

// prepare validates req, fills its defaults and returns the game with the
// session config simulations play under.
func prepare(req *Request) (*games.Game, session.Config, error) {
	g, ok := games.GetGame(req.Game)
	if !ok {
		return nil, session.Config{}, fmt.Errorf("%w: %q", ErrGameNotFound, req.Game)
	}
	if req.Seeds.Server == "" && !req.Unseeded {
		return nil, session.Config{}, fmt.Errorf("%w: server seed is required", ErrInvalidRequest)
	}
	if req.Stake == 0 {
		req.Stake = g.Stake
	}
	if err := g.ValidateStake(req.Stake); err != nil {
		return nil, session.Config{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.MaxRounds <= 0 {
		req.MaxRounds = DefaultMaxRounds
	}
	if req.RoundTime < 0 {
		return nil, session.Config{}, fmt.Errorf("%w: negative round time", ErrInvalidRequest)
	}

	// The daily gate would refuse every session after the first.
	cfg := g.Config
	cfg.Gate = nil
	return g, cfg, nil
}

func summarize(t *tally) Summary {
	s := Summary{
		Sessions:    t.sessions,
		Rounds:      t.rounds,
		TotalStake:  t.stake,
		TotalPayout: t.payout,
		TotalBonus:  t.bonus,
		Forfeited:   t.forfeited,
		MaxStreak:   t.maxStreak,
		MaxPayout:   t.maxPayout,
		Ends:        t.ends,
	}
	if t.sessions == 0 {
		return s
	}
	s.MinPayout = t.minPayout
	s.MeanPayout = float64(t.payout) / float64(t.sessions)
	if t.stake > 0 {
		s.RTP = float64(t.payout) / float64(t.stake)
	}
	if t.rounds > 0 {
		s.HitRate = float64(t.hits) / float64(t.rounds)
	}
	return s
}

// generateJobs splits [0, n) into batches.
func generateJobs(ctx context.Context, jobs chan<- job, n uint64) {
	defer close(jobs)

	for current := uint64(0); current < n; {
		end := min(current+batchSize, n)
		select {
		case jobs <- job{start: current, end: end}:
			current = end
		case <-ctx.Done():
			return
		}
	}
}

// worker owns one tracker and plays whole sessions from the job queue.
type worker struct {
	id      int
	req     Request
	tracker *session.Tracker
	jobs    <-chan job
	failed  *atomic.Pointer[error]
}

func (w *worker) run(ctx context.Context, entries int) *tally {
	t := newTally(entries)
	for {
		select {
		case j, ok := <-w.jobs:
			if !ok {
				return t
			}
			for i := j.start; i < j.end; i++ {
				if ctx.Err() != nil || w.failed.Load() != nil {
					return t
				}
				if err := w.play(t, w.req.NonceStart+i); err != nil {
					err = fmt.Errorf("simulate: session at nonce %d: %w", w.req.NonceStart+i, err)
					w.failed.CompareAndSwap(nil, &err)
					return t
				}
			}
		case <-ctx.Done():
			return t
		}
	}
}

// play runs one session to completion and adds it to t.
func (w *worker) play(t *tally, nonce uint64) error {
	sum, err := playSession(w.tracker, w.req.source(nonce), w.req, w.req.Stake, func(out session.Outcome) {
		t.rounds++
		t.entries[out.Result.Index]++
		if out.Result.Qualifying() {
			t.hits++
		}
	})
	if err != nil {
		return err
	}
	t.sessions++
	t.stake += sum.Stake
	t.payout += sum.Payout
	t.bonus += sum.Bonus
	t.forfeited += sum.Forfeited
	t.maxStreak = max(t.maxStreak, sum.MaxStreak)
	t.minPayout = min(t.minPayout, sum.Payout)
	t.maxPayout = max(t.maxPayout, sum.Payout)
	t.ends[sum.Reason]++
	return nil
}

// source returns the draws for the session at nonce.
func (req *Request) source(nonce uint64) engine.Source {
	if req.Unseeded {
		return engine.CryptoSource{}
	}
	return engine.NewStreamSource(req.Seeds, nonce)
}

// playSession starts tr and resolves draws from src until the session
// completes. Sessions reaching req.MaxRounds are ended as finished.
func playSession(tr *session.Tracker, src engine.Source, req Request, balance int64, onRound func(session.Outcome)) (session.Summary, error) {
	if _, err := tr.Start(req.Stake, balance); err != nil {
		return session.Summary{}, err
	}

	for tr.Status() == session.StatusActive {
		if tr.State().RoundsPlayed >= req.MaxRounds {
			if _, err := tr.End(session.EndFinished); err != nil {
				return session.Summary{}, err
			}
			break
		}
		out, err := tr.SubmitResolve(src.Next())
		if err != nil {
			return session.Summary{}, err
		}
		if onRound != nil {
			onRound(out)
		}
		if !out.Complete && req.RoundTime > 0 {
			if _, err := tr.Tick(req.RoundTime); err != nil {
				return session.Summary{}, err
			}
		}
	}
	return tr.Summary()
}
