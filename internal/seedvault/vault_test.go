package seedvault

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/MJE43/coin-reward-engine/internal/engine"
)

func newVault(t *testing.T) *Vault {
	t.Helper()
	keyring.MockInit()
	return New("coin-reward-engine-test", filepath.Join(t.TempDir(), "fallback_secrets.json"))
}

func TestActiveCreatesOnce(t *testing.T) {
	v := newVault(t)

	first, err := v.Active("alice")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if len(first.ServerSeedHash) != 64 || first.ClientSeed == "" || first.Nonce != 0 {
		t.Fatalf("unexpected commitment: %+v", first)
	}

	again, err := v.Active("alice")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if again != first {
		t.Fatalf("expected stable commitment, got %+v then %+v", first, again)
	}

	if _, err := v.Active("  "); !errors.Is(err, ErrNoAccount) {
		t.Fatalf("expected ErrNoAccount, got %v", err)
	}
}

func TestDrawAdvancesNonce(t *testing.T) {
	v := newVault(t)

	var draws []float64
	for i := 0; i < 3; i++ {
		f, nonce, c, err := v.Draw("alice")
		if err != nil {
			t.Fatalf("Draw: %v", err)
		}
		if nonce != uint64(i) || c.Nonce != nonce {
			t.Fatalf("expected nonce %d, got %d", i, nonce)
		}
		if f < 0 || f >= 1 {
			t.Fatalf("draw out of range: %v", f)
		}
		draws = append(draws, f)
	}

	seeds, start, err := v.Reserve("alice", 10)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if start != 3 {
		t.Fatalf("expected reservation to start at 3, got %d", start)
	}
	if c, _ := v.Active("alice"); c.Nonce != 13 {
		t.Fatalf("expected next nonce 13, got %d", c.Nonce)
	}

	for i, want := range draws {
		if got := engine.DrawAt(seeds, uint64(i)); got != want {
			t.Errorf("nonce %d: replay %v != draw %v", i, got, want)
		}
	}
}

func TestRotateReveals(t *testing.T) {
	v := newVault(t)

	before, err := v.Active("bob")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if _, _, _, err := v.Draw("bob"); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	reveal, next, err := v.Rotate("bob", "new-client")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if engine.HashServerSeed(reveal.ServerSeed) != before.ServerSeedHash {
		t.Fatalf("revealed seed does not match commitment")
	}
	if reveal.NextNonce != 1 || reveal.ClientSeed != before.ClientSeed {
		t.Fatalf("unexpected reveal: %+v", reveal)
	}
	if next.ServerSeedHash == before.ServerSeedHash || next.ClientSeed != "new-client" || next.Nonce != 0 {
		t.Fatalf("unexpected next commitment: %+v", next)
	}
}

func TestDelete(t *testing.T) {
	v := newVault(t)

	before, err := v.Active("carol")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if err := v.Delete("carol"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	after, err := v.Active("carol")
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if after.ServerSeedHash == before.ServerSeedHash {
		t.Fatalf("expected a fresh seed after delete")
	}
}

func TestFallbackFile(t *testing.T) {
	v := New("svc", filepath.Join(t.TempDir(), "nested", "secrets.json"))

	if err := v.setFallback("alice", `{"server":"s","client":"c","nonce":4}`); err != nil {
		t.Fatalf("setFallback: %v", err)
	}
	got, err := v.getFallback("alice")
	if err != nil {
		t.Fatalf("getFallback: %v", err)
	}
	if got != `{"server":"s","client":"c","nonce":4}` {
		t.Fatalf("unexpected fallback value %q", got)
	}
	if _, err := v.getFallback("bob"); !errors.Is(err, keyring.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
