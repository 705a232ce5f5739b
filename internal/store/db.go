package store

import (
	"context"
	"errors"
	"time"

	"github.com/MJE43/coin-reward-engine/internal/session"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInsufficientFunds is returned by Apply when a delta would take an
	// account below zero. The ledger is left unchanged.
	ErrInsufficientFunds = errors.New("store: insufficient funds")
)

// ReasonGrant labels coins credited outside a session, such as a welcome
// bonus.
const ReasonGrant session.DeltaReason = "grant"

// Ledger is the wallet half of the store. Every DB is a Ledger and every
// Ledger is a session.Wallet.
type Ledger interface {
	Apply(d session.Delta) error
	Balance(account string) (int64, error)
}

// DB represents the database interface
type DB interface {
	Ledger
	Close() error
	Ping(ctx context.Context) error
	Migrate() error
	// HasAccount reports whether account has ever had a ledger entry.
	HasAccount(account string) (bool, error)
	SaveSession(s *Session) error
	UpdateSession(s *Session) error
	SaveRound(r *Round) error
	GetSession(id string) (*Session, error)
	ListSessions(query SessionsQuery) (*SessionsList, error)
	GetRounds(sessionID string, page, perPage int) (*RoundsPage, error)
	// LastGatedStart returns when account last started game, or the zero
	// time if never.
	LastGatedStart(account, game string) (time.Time, error)
}

// SessionsQuery represents query parameters for listing sessions
type SessionsQuery struct {
	Account string `json:"account,omitempty"`
	Game    string `json:"game,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// SessionsList represents paginated sessions response
type SessionsList struct {
	Sessions   []Session `json:"sessions"`
	TotalCount int       `json:"totalCount"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
	TotalPages int       `json:"totalPages"`
}

// RoundsPage is one page of a session's rounds.
type RoundsPage struct {
	Rounds     []Round `json:"rounds"`
	TotalCount int     `json:"totalCount"`
	Page       int     `json:"page"`
	PerPage    int     `json:"perPage"`
	TotalPages int     `json:"totalPages"`
}

// Session is a persisted play session. Totals are filled in by
// UpdateSession as rounds settle.
type Session struct {
	ID             string     `json:"id" db:"id"`
	Account        string     `json:"account" db:"account"`
	Game           string     `json:"game" db:"game"`
	Stake          int64      `json:"stake" db:"stake"`
	Status         string     `json:"status" db:"status"`
	EndReason      string     `json:"end_reason,omitempty" db:"end_reason"`
	Payout         int64      `json:"payout" db:"payout"`
	Bonus          int64      `json:"bonus" db:"bonus"`
	Forfeited      int64      `json:"forfeited" db:"forfeited"`
	Score          int64      `json:"score" db:"score"`
	MaxStreak      int        `json:"max_streak" db:"max_streak"`
	RoundsPlayed   int        `json:"rounds_played" db:"rounds_played"`
	ElapsedMs      int64      `json:"elapsed_ms" db:"elapsed_ms"`
	ServerSeedHash string     `json:"server_seed_hash,omitempty" db:"server_seed_hash"`
	ClientSeed     string     `json:"client_seed,omitempty" db:"client_seed"`
	NonceStart     uint64     `json:"nonce_start" db:"nonce_start"`
	NonceEnd       uint64     `json:"nonce_end" db:"nonce_end"`
	EngineVersion  string     `json:"engine_version" db:"engine_version"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Net is payout minus stake.
func (s Session) Net() int64 { return s.Payout - s.Stake }

// Round is one settled round. Nonce and Draw are nil for rounds settled
// from a known outcome rather than a draw.
type Round struct {
	ID         int64    `json:"id" db:"id"`
	SessionID  string   `json:"session_id" db:"session_id"`
	Round      int      `json:"round" db:"round"`
	Nonce      *uint64  `json:"nonce,omitempty" db:"nonce"`
	Draw       *float64 `json:"draw,omitempty" db:"draw"`
	EntryID    string   `json:"entry_id" db:"entry_id"`
	Multiplier string   `json:"multiplier" db:"multiplier"`
	Credited   int64    `json:"credited" db:"credited"`
	Held       int64    `json:"held" db:"held"`
	Points     int64    `json:"points" db:"points"`
	Delta      int64    `json:"delta" db:"delta"`
	Tier       string   `json:"tier,omitempty" db:"tier"`
	Details    string   `json:"details" db:"details"` // JSON string
}

// ApplyState copies the running totals of an active session onto s.
func (s *Session) ApplyState(st session.State) {
	s.Status = string(session.StatusActive)
	s.Payout = st.CumulativePayout
	s.Score = st.Score
	s.MaxStreak = st.MaxStreak
	s.RoundsPlayed = st.RoundsPlayed
	s.ElapsedMs = st.Elapsed.Milliseconds()
}

// ApplySummary copies a completed session's totals onto s.
func (s *Session) ApplySummary(sum session.Summary, at time.Time) {
	s.Status = string(session.StatusComplete)
	s.EndReason = string(sum.Reason)
	s.Payout = sum.Payout
	s.Bonus = sum.Bonus
	s.Forfeited = sum.Forfeited
	s.Score = sum.Score
	s.MaxStreak = sum.MaxStreak
	s.RoundsPlayed = sum.RoundsPlayed
	s.ElapsedMs = sum.Elapsed.Milliseconds()
	s.CompletedAt = &at
}

// Summary rebuilds the completed session's summary from its stored totals.
func (s *Session) Summary() session.Summary {
	return session.Summary{
		SessionID:    s.ID,
		Account:      s.Account,
		Game:         s.Game,
		Reason:       session.EndReason(s.EndReason),
		Stake:        s.Stake,
		Payout:       s.Payout,
		Net:          s.Net(),
		Bonus:        s.Bonus,
		Forfeited:    s.Forfeited,
		Score:        s.Score,
		MaxStreak:    s.MaxStreak,
		RoundsPlayed: s.RoundsPlayed,
		Elapsed:      time.Duration(s.ElapsedMs) * time.Millisecond,
	}
}

func pageBounds(page, perPage, defaultPer, total int) (int, int, int, int) {
	if perPage <= 0 {
		perPage = defaultPer
	}
	if page <= 0 {
		page = 1
	}
	totalPages := (total + perPage - 1) / perPage
	return page, perPage, totalPages, (page - 1) * perPage
}
