package store

import (
	"fmt"
	"sync"

	"github.com/MJE43/coin-reward-engine/internal/session"
)

// MemoryWallet is an in-process Ledger for session traces and tests.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[string]int64
	history  []session.Delta
}

func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{balances: make(map[string]int64)}
}

// Apply moves the account balance, rejecting deltas that would overdraw it.
func (w *MemoryWallet) Apply(d session.Delta) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := w.balances[d.Account] + d.Amount
	if next < 0 {
		return fmt.Errorf("%w: %s needs %d more", ErrInsufficientFunds, d.Account, -next)
	}
	w.balances[d.Account] = next
	w.history = append(w.history, d)
	return nil
}

func (w *MemoryWallet) Balance(account string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[account], nil
}

// History returns a copy of every accepted delta.
func (w *MemoryWallet) History() []session.Delta {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]session.Delta, len(w.history))
	copy(out, w.history)
	return out
}

// Grant credits coins outside a session.
func Grant(l Ledger, account string, amount int64) error {
	return l.Apply(session.Delta{Account: account, Reason: ReasonGrant, Amount: amount})
}

var _ Ledger = (*MemoryWallet)(nil)
