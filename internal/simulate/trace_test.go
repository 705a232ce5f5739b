package simulate

import (
	"errors"
	"testing"

	"github.com/MJE43/coin-reward-engine/internal/store"
)

func TestTraceMatchesRun(t *testing.T) {
	for _, game := range []string{"lucky-draw", "scratch-card", "treasure-hunt"} {
		t.Run(game, func(t *testing.T) {
			req := Request{Game: game, Seeds: testSeeds, NonceStart: 7, Sessions: 1}

			wallet := store.NewMemoryWallet()
			if err := store.Grant(wallet, "tracer", 100); err != nil {
				t.Fatalf("Grant failed: %v", err)
			}
			trace, err := TraceSession(req, "tracer", wallet, 100)
			if err != nil {
				t.Fatalf("TraceSession failed: %v", err)
			}

			res := run(t, 1, req)
			if res.Summary.Rounds != uint64(len(trace.Outcomes)) {
				t.Errorf("Expected %d rounds, got %d", res.Summary.Rounds, len(trace.Outcomes))
			}
			if res.Summary.TotalPayout != trace.Summary.Payout {
				t.Errorf("Expected payout %d, got %d", res.Summary.TotalPayout, trace.Summary.Payout)
			}
			for _, out := range trace.Outcomes {
				if res.Entries[out.Result.Index].Count == 0 {
					t.Errorf("Entry %s drawn in trace but not in run", out.Result.Selected.ID)
				}
			}

			balance, _ := wallet.Balance("tracer")
			if balance != 100+trace.Summary.Net {
				t.Errorf("Expected balance %d, got %d", 100+trace.Summary.Net, balance)
			}
			for _, d := range wallet.History()[1:] {
				if d.Account != "tracer" || d.Game != game {
					t.Errorf("Expected delta for tracer in %s, got %+v", game, d)
				}
			}
		})
	}
}

func TestTraceRejectsUnfundedWallet(t *testing.T) {
	req := Request{Game: "lucky-draw", Seeds: testSeeds}
	_, err := TraceSession(req, "broke", store.NewMemoryWallet(), 100)
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Errorf("Expected insufficient funds, got %v", err)
	}
}
