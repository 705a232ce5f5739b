package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MJE43/coin-reward-engine/internal/session"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	// Create in-memory database for testing
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func TestMigrationIdempotency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.db")

	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(); err != nil {
			t.Fatalf("Failed to migrate (pass %d): %v", i+1, err)
		}
	}

	sess := &Session{Account: "alice", Game: "lucky-draw", Stake: 25, Status: "active", EngineVersion: "test"}
	if err := db.SaveSession(sess); err != nil {
		t.Fatalf("Failed to save session after multiple migrations: %v", err)
	}
	if sess.ID == "" {
		t.Error("Expected SaveSession to assign an ID")
	}
}

func TestApplyAndBalance(t *testing.T) {
	db := newTestDB(t)

	if b, err := db.Balance("alice"); err != nil || b != 0 {
		t.Fatalf("Expected unknown account at 0, got %d (%v)", b, err)
	}

	if ok, err := db.HasAccount("alice"); err != nil || ok {
		t.Fatalf("Expected no account before the first delta, got %v (%v)", ok, err)
	}
	if err := Grant(db, "alice", 100); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if ok, _ := db.HasAccount("alice"); !ok {
		t.Error("Expected account after grant")
	}
	deltas := []session.Delta{
		{Account: "alice", SessionID: "s1", Reason: session.ReasonStake, Amount: -25},
		{Account: "alice", SessionID: "s1", Round: 1, Reason: session.ReasonRound, Amount: 50, Payout: 50},
	}
	for _, d := range deltas {
		if err := db.Apply(d); err != nil {
			t.Fatalf("Apply(%+v) failed: %v", d, err)
		}
	}

	b, err := db.Balance("alice")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if b != 125 {
		t.Errorf("Expected balance 125, got %d", b)
	}

	// Overdraw is rejected and leaves the balance alone.
	err = db.Apply(session.Delta{Account: "alice", Reason: session.ReasonStake, Amount: -200})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
	if b, _ := db.Balance("alice"); b != 125 {
		t.Errorf("Expected balance unchanged at 125, got %d", b)
	}

	var rows int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM ledger WHERE account = ?", "alice").Scan(&rows); err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if rows != 3 {
		t.Errorf("Expected 3 ledger rows, got %d", rows)
	}

	if err := db.Apply(session.Delta{Amount: 5}); err == nil {
		t.Error("Expected error for delta without account")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db := newTestDB(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sess := &Session{
		ID:             "sess-1",
		Account:        "alice",
		Game:           "treasure-hunt",
		Stake:          30,
		Status:         string(session.StatusActive),
		ServerSeedHash: "a1b2c3",
		ClientSeed:     "client",
		NonceStart:     7,
		NonceEnd:       7,
		EngineVersion:  "1.0.0",
		CreatedAt:      created,
	}
	if err := db.SaveSession(sess); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	got, err := db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got.ServerSeedHash != "a1b2c3" || got.NonceStart != 7 || got.CompletedAt != nil {
		t.Errorf("Unexpected session %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("Expected created_at %s, got %s", created, got.CreatedAt)
	}

	done := created.Add(time.Minute)
	sess.ApplySummary(session.Summary{
		Reason:       session.EndBust,
		Stake:        30,
		Forfeited:    150,
		RoundsPlayed: 2,
		Elapsed:      1500 * time.Millisecond,
	}, done)
	sess.NonceEnd = 9
	if err := db.UpdateSession(sess); err != nil {
		t.Fatalf("Failed to update session: %v", err)
	}

	got, err = db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got.Status != "complete" || got.EndReason != "bust" || got.Forfeited != 150 || got.ElapsedMs != 1500 {
		t.Errorf("Unexpected totals %+v", got)
	}
	if got.NonceEnd != 9 {
		t.Errorf("Expected nonce_end 9, got %d", got.NonceEnd)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("Expected completed_at %s, got %v", done, got.CompletedAt)
	}
	if sum := got.Summary(); sum.Reason != session.EndBust || sum.Elapsed != 1500*time.Millisecond || sum.Net != -30 {
		t.Errorf("Unexpected rebuilt summary %+v", sum)
	}
	if got.Net() != -30 {
		t.Errorf("Expected net -30, got %d", got.Net())
	}

	if _, err := db.GetSession("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := db.UpdateSession(&Session{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on update, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*Session{
		{ID: "s1", Account: "alice", Game: "lucky-draw", Stake: 25, Status: "complete", EngineVersion: "1.0.0", CreatedAt: base},
		{ID: "s2", Account: "bob", Game: "slot-machine", Stake: 10, Status: "complete", EngineVersion: "1.0.0", CreatedAt: base.Add(time.Hour)},
		{ID: "s3", Account: "alice", Game: "lucky-draw", Stake: 25, Status: "active", EngineVersion: "1.0.0", CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, s := range sessions {
		if err := db.SaveSession(s); err != nil {
			t.Fatalf("Failed to save session %s: %v", s.ID, err)
		}
	}

	result, err := db.ListSessions(SessionsQuery{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if result.TotalCount != 3 || len(result.Sessions) != 3 {
		t.Errorf("Expected 3 sessions, got %d/%d", result.TotalCount, len(result.Sessions))
	}
	if result.Sessions[0].ID != "s3" {
		t.Errorf("Expected newest session first, got %s", result.Sessions[0].ID)
	}

	result, err = db.ListSessions(SessionsQuery{Account: "alice", Game: "lucky-draw"})
	if err != nil {
		t.Fatalf("Failed to list filtered sessions: %v", err)
	}
	if result.TotalCount != 2 {
		t.Errorf("Expected 2 sessions for alice, got %d", result.TotalCount)
	}
	if result.PerPage != 50 || result.Page != 1 {
		t.Errorf("Expected default paging 1/50, got %d/%d", result.Page, result.PerPage)
	}

	result, err = db.ListSessions(SessionsQuery{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("Failed to list sessions with pagination: %v", err)
	}
	if len(result.Sessions) != 1 || result.TotalPages != 2 {
		t.Errorf("Expected 1 session on page 2 of 2, got %d of %d", len(result.Sessions), result.TotalPages)
	}

	last, err := db.LastGatedStart("alice", "lucky-draw")
	if err != nil {
		t.Fatalf("LastGatedStart failed: %v", err)
	}
	if !last.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Expected last start %s, got %s", base.Add(2*time.Hour), last)
	}
	if last, _ := db.LastGatedStart("carol", "lucky-draw"); !last.IsZero() {
		t.Errorf("Expected zero time for unknown account, got %s", last)
	}
}

func TestGetRounds(t *testing.T) {
	db := newTestDB(t)

	if err := db.SaveSession(&Session{ID: "sess", Account: "alice", Game: "spin-wheel", Status: "active", EngineVersion: "1.0.0"}); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	for i := 1; i <= 5; i++ {
		r := &Round{SessionID: "sess", Round: i, EntryID: "segment_0", Multiplier: "1", Credited: 100, Delta: 100}
		if i%2 == 1 {
			nonce := uint64(i)
			draw := 0.1 * float64(i)
			r.Nonce, r.Draw = &nonce, &draw
		} else {
			r.Tier = "great"
		}
		if err := db.SaveRound(r); err != nil {
			t.Fatalf("Failed to save round %d: %v", i, err)
		}
		if r.ID == 0 {
			t.Errorf("Expected round %d to get an ID", i)
		}
	}

	page, err := db.GetRounds("sess", 1, 3)
	if err != nil {
		t.Fatalf("Failed to get rounds: %v", err)
	}
	if page.TotalCount != 5 || page.TotalPages != 2 || len(page.Rounds) != 3 {
		t.Fatalf("Expected 3 of 5 rounds over 2 pages, got %d of %d over %d", len(page.Rounds), page.TotalCount, page.TotalPages)
	}
	first := page.Rounds[0]
	if first.Round != 1 || first.Nonce == nil || *first.Nonce != 1 || first.Draw == nil {
		t.Errorf("Unexpected first round %+v", first)
	}
	if second := page.Rounds[1]; second.Nonce != nil || second.Draw != nil || second.Tier != "great" {
		t.Errorf("Expected outcome round without nonce, got %+v", second)
	}

	page, err = db.GetRounds("sess", 2, 3)
	if err != nil {
		t.Fatalf("Failed to get rounds page 2: %v", err)
	}
	if len(page.Rounds) != 2 || page.Rounds[0].Round != 4 {
		t.Errorf("Expected rounds 4-5 on page 2, got %+v", page.Rounds)
	}
}
