package simulate

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MJE43/coin-reward-engine/internal/engine"
	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/MJE43/coin-reward-engine/internal/session"
)

var testSeeds = engine.Seeds{Server: "simulate-server", Client: "simulate-client"}

func run(t *testing.T, workers int, req Request) *Result {
	t.Helper()
	res, err := New(zerolog.Nop(), workers).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res
}

func TestRunDeterministicAcrossWorkers(t *testing.T) {
	req := Request{Game: "treasure-hunt", Seeds: testSeeds, Sessions: 3000}

	one := run(t, 1, req)
	many := run(t, 6, req)

	if !reflect.DeepEqual(one.Summary, many.Summary) {
		t.Errorf("Expected identical summaries, got %+v and %+v", one.Summary, many.Summary)
	}
	if !reflect.DeepEqual(one.Entries, many.Entries) {
		t.Errorf("Expected identical entry stats, got %+v and %+v", one.Entries, many.Entries)
	}
}

func TestRunMatchesTable(t *testing.T) {
	res := run(t, 0, Request{Game: "lucky-draw", Seeds: testSeeds, Sessions: 20_000})
	s := res.Summary

	if s.Sessions != 20_000 || s.Rounds != 20_000 {
		t.Fatalf("Expected 20000 single-round sessions, got %d sessions / %d rounds", s.Sessions, s.Rounds)
	}
	if s.TotalStake != 25*20_000 {
		t.Errorf("Expected total stake %d, got %d", 25*20_000, s.TotalStake)
	}
	if s.Ends[session.EndRounds] != 20_000 {
		t.Errorf("Expected every session to end on rounds, got %v", s.Ends)
	}
	for _, e := range res.Entries {
		if math.Abs(e.Frequency-e.Expected) > 0.02 {
			t.Errorf("Entry %s: expected frequency ~%.3f, got %.3f", e.ID, e.Expected, e.Frequency)
		}
	}

	g, _ := games.GetGame("lucky-draw")
	ev, _ := g.Table.ExpectedValue(25).Float64()
	if math.Abs(s.MeanPayout-ev) > ev*0.1 {
		t.Errorf("Expected mean payout ~%.2f, got %.2f", ev, s.MeanPayout)
	}
	if math.Abs(s.RTP-ev/25) > 0.3 {
		t.Errorf("Expected RTP ~%.2f, got %.2f", ev/25, s.RTP)
	}
	if s.MinPayout != 0 || s.MaxPayout != 1000 {
		t.Errorf("Expected payouts between 0 and 1000, got %d..%d", s.MinPayout, s.MaxPayout)
	}
	if math.Abs(s.HitRate-g.Table.HitRate()) > 0.02 {
		t.Errorf("Expected hit rate ~%.2f, got %.2f", g.Table.HitRate(), s.HitRate)
	}
}

// The first round of session i replays as DrawAt(seeds, NonceStart+i).
func TestRunReplaysFromNonce(t *testing.T) {
	res := run(t, 1, Request{Game: "lucky-draw", Seeds: testSeeds, NonceStart: 41, Sessions: 1})

	g, _ := games.GetGame("lucky-draw")
	want, err := resolver.Resolve(g.Table, engine.DrawAt(testSeeds, 41))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for _, e := range res.Entries {
		expected := uint64(0)
		if e.ID == want.Selected.ID {
			expected = 1
		}
		if e.Count != expected {
			t.Errorf("Entry %s: expected count %d, got %d", e.ID, expected, e.Count)
		}
	}
}

func TestRunTreasureHunt(t *testing.T) {
	s := run(t, 0, Request{Game: "treasure-hunt", Seeds: testSeeds, Sessions: 2000}).Summary

	if s.Ends[session.EndBust] == 0 || s.Ends[session.EndRounds] == 0 {
		t.Errorf("Expected both busts and full hunts, got %v", s.Ends)
	}
	// Uncovering every prize ends a hunt early.
	if s.Ends[session.EndBust]+s.Ends[session.EndRounds]+s.Ends[session.EndFinished] != 2000 {
		t.Errorf("Expected 2000 ended sessions, got %v", s.Ends)
	}
	if s.Forfeited <= 0 {
		t.Errorf("Expected forfeited winnings from busts, got %d", s.Forfeited)
	}
	if s.Rounds > 8*2000 {
		t.Errorf("Expected at most 8 moves per hunt, got %d rounds", s.Rounds)
	}
}

func TestRunCapsUnboundedSessions(t *testing.T) {
	s := run(t, 2, Request{Game: "memory-match", Seeds: testSeeds, Sessions: 100, MaxRounds: 10}).Summary

	if s.Rounds != 1000 {
		t.Errorf("Expected 10 moves per game, got %d rounds", s.Rounds)
	}
	if s.Ends[session.EndFinished] != 100 {
		t.Errorf("Expected every game finished, got %v", s.Ends)
	}
	// 100 + (120 - 0s) + (50 - 10 moves)
	if s.TotalBonus != 260*100 {
		t.Errorf("Expected bonus 260 per game, got %d total", s.TotalBonus)
	}
	if s.RTP != 0 {
		t.Errorf("Expected RTP 0 for a free game, got %v", s.RTP)
	}
}

func TestRunDefaultsMaxRounds(t *testing.T) {
	res := run(t, 2, Request{Game: "memory-match", Seeds: testSeeds, Sessions: 3})

	if res.Echo.MaxRounds != 100 {
		t.Errorf("Expected default cap of 100 rounds, got %d", res.Echo.MaxRounds)
	}
	if res.Summary.Rounds != 300 {
		t.Errorf("Expected 100 moves per game, got %d rounds", res.Summary.Rounds)
	}
}

func TestRunUnseeded(t *testing.T) {
	res := run(t, 4, Request{Game: "lucky-draw", Unseeded: true, Sessions: 20_000})

	if res.Summary.Sessions != 20_000 {
		t.Fatalf("Expected 20000 sessions, got %d", res.Summary.Sessions)
	}
	for _, e := range res.Entries {
		if e.Expected > 0.05 && math.Abs(e.Frequency-e.Expected) > 0.02 {
			t.Errorf("Entry %s: expected frequency near %.3f, got %.3f", e.ID, e.Expected, e.Frequency)
		}
	}
}

func TestRunTicksTimeBox(t *testing.T) {
	s := run(t, 2, Request{Game: "whack-a-mole", Seeds: testSeeds, Sessions: 50, RoundTime: time.Second}).Summary

	if s.Rounds != 30*50 {
		t.Errorf("Expected 30 rounds per session, got %d", s.Rounds)
	}
	if s.Ends[session.EndTime] != 50 {
		t.Errorf("Expected every session to run out of time, got %v", s.Ends)
	}
}

func TestRunRejects(t *testing.T) {
	sim := New(zerolog.Nop(), 2)
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown game", Request{Game: "nope", Seeds: testSeeds, Sessions: 1}, ErrGameNotFound},
		{"no sessions", Request{Game: "lucky-draw", Seeds: testSeeds}, ErrInvalidRequest},
		{"no seed", Request{Game: "lucky-draw", Sessions: 1}, ErrInvalidRequest},
		{"wrong stake", Request{Game: "lucky-draw", Seeds: testSeeds, Sessions: 1, Stake: 3}, ErrInvalidRequest},
		{"negative round time", Request{Game: "lucky-draw", Seeds: testSeeds, Sessions: 1, RoundTime: -time.Second}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sim.Run(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(zerolog.Nop(), 2).Run(ctx, Request{Game: "lucky-draw", Seeds: testSeeds, Sessions: 100_000})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Summary.TimedOut {
		t.Error("Expected TimedOut for a cancelled run")
	}
	if res.Summary.Sessions >= 100_000 {
		t.Errorf("Expected a partial run, got %d sessions", res.Summary.Sessions)
	}
}
