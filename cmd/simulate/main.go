// Command simulate plays seeded sessions of a game offline and reports how
// its prize table pays out.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MJE43/coin-reward-engine/internal/engine"
	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/simulate"
	"github.com/MJE43/coin-reward-engine/internal/store"
)

const traceAccount = "trace"

func main() {
	var (
		game       = flag.String("game", "lucky-draw", "game ID")
		sessions   = flag.Int("sessions", 100_000, "number of sessions")
		serverSeed = flag.String("server-seed", "", "server seed (empty draws from crypto/rand)")
		clientSeed = flag.String("client-seed", "", "client seed")
		nonceStart = flag.Uint64("nonce-start", 0, "nonce of the first session")
		stake      = flag.Int64("stake", 0, "stake per session (default: the game's)")
		maxRounds  = flag.Int("max-rounds", 0, "round cap for games without a round limit")
		roundTime  = flag.Duration("round-time", 0, "time ticked per round for time-boxed games")
		workers    = flag.Int("workers", 0, "worker goroutines (default GOMAXPROCS)")
		timeout    = flag.Duration("timeout", 0, "stop early after this long")
		presets    = flag.String("presets", "", "YAML file of extra games")
		asJSON     = flag.Bool("json", false, "print JSON")
		trace      = flag.Bool("trace", false, "play only the first session and print every round")
		list       = flag.Bool("list", false, "list games and exit")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if *presets != "" {
		loaded, err := games.LoadPresets(*presets)
		if err != nil {
			logger.Fatal().Err(err).Msg("load presets")
		}
		for _, g := range loaded {
			if err := games.Register(g); err != nil {
				logger.Fatal().Err(err).Msg("register preset")
			}
		}
	}

	if *list {
		printGames()
		return
	}
	req := simulate.Request{
		Game:       *game,
		Seeds:      engine.Seeds{Server: *serverSeed, Client: *clientSeed},
		Unseeded:   *serverSeed == "",
		NonceStart: *nonceStart,
		Sessions:   *sessions,
		Stake:      *stake,
		MaxRounds:  *maxRounds,
		RoundTime:  *roundTime,
		TimeoutMs:  int(timeout.Milliseconds()),
	}
	if req.Unseeded {
		logger.Warn().Msg("no -server-seed given; drawing from crypto/rand, results cannot be replayed")
	}

	if *trace {
		if err := runTrace(req, *asJSON); err != nil {
			logger.Fatal().Err(err).Msg("trace failed")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	started := time.Now()
	res, err := simulate.New(logger, *workers).Run(ctx, req)
	if err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}
	logger.Info().Dur("took", time.Since(started)).Bool("timed_out", res.Summary.TimedOut).Msg("done")

	if *asJSON {
		printJSON(res)
		return
	}
	printResult(res)
}

// runTrace plays one session against an in-memory wallet funded with
// exactly the stake and prints every wallet movement.
func runTrace(req simulate.Request, asJSON bool) error {
	g, ok := games.GetGame(req.Game)
	if !ok {
		return fmt.Errorf("unknown game %q", req.Game)
	}
	stake := req.Stake
	if stake == 0 {
		stake = g.Stake
	}

	wallet := store.NewMemoryWallet()
	if stake > 0 {
		if err := store.Grant(wallet, traceAccount, stake); err != nil {
			return err
		}
	}
	t, err := simulate.TraceSession(req, traceAccount, wallet, stake)
	if err != nil {
		return err
	}

	if asJSON {
		printJSON(map[string]any{"trace": t, "deltas": wallet.History()})
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "round\tentry\tdraw\tcredited\theld\tpoints\tstreak\tmultiplier\n")
	for _, out := range t.Outcomes {
		fmt.Fprintf(tw, "%d\t%s\t%.6f\t%d\t%d\t%d\t%d\t%s\n",
			out.Round, out.Result.Selected.ID, out.Result.Draw, out.Credited, out.Held, out.Points,
			out.State.Streak, out.State.ComboMultiplier.StringFixed(2))
	}
	tw.Flush()

	fmt.Printf("\nwallet:\n")
	tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, d := range wallet.History() {
		fmt.Fprintf(tw, "  %s\tround %d\t%+d\n", d.Reason, d.Round, d.Amount)
	}
	tw.Flush()

	s := t.Summary
	fmt.Printf("\nnonce %d: %s after %d rounds, payout %d (bonus %d, forfeited %d), net %+d\n",
		t.Nonce, s.Reason, s.RoundsPlayed, s.Payout, s.Bonus, s.Forfeited, s.Net)
	return nil
}

func printResult(res *simulate.Result) {
	s := res.Summary
	fmt.Printf("game %s: %d sessions, %d rounds\n", res.Echo.Game, s.Sessions, s.Rounds)
	fmt.Printf("stake %d  payout %d  bonus %d  forfeited %d\n", s.TotalStake, s.TotalPayout, s.TotalBonus, s.Forfeited)
	fmt.Printf("rtp %.4f  hit rate %.4f  mean payout %.2f  min %d  max %d  max streak %d\n\n",
		s.RTP, s.HitRate, s.MeanPayout, s.MinPayout, s.MaxPayout, s.MaxStreak)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "entry\tcount\tfrequency\texpected\n")
	for _, e := range res.Entries {
		fmt.Fprintf(tw, "%s\t%d\t%.5f\t%.5f\n", e.ID, e.Count, e.Frequency, e.Expected)
	}
	tw.Flush()

	fmt.Println()
	for _, r := range slices.Sorted(maps.Keys(s.Ends)) {
		fmt.Printf("ended %s: %d\n", r, s.Ends[r])
	}
}

func printGames() {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\tkind\tstake\tname\n")
	for _, g := range games.ListGames() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", g.ID, g.Kind, g.Stake, g.Name)
	}
	tw.Flush()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(1)
	}
}
