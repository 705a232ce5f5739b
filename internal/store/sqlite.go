package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to :memory: is its own database.
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations
func (s *SQLiteDB) Migrate() error {
	// First, create base tables
	baseMigrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			account TEXT NOT NULL,
			game TEXT NOT NULL,
			stake INTEGER NOT NULL,
			status TEXT NOT NULL,
			end_reason TEXT,
			payout INTEGER NOT NULL DEFAULT 0,
			bonus INTEGER NOT NULL DEFAULT 0,
			forfeited INTEGER NOT NULL DEFAULT 0,
			score INTEGER NOT NULL DEFAULT 0,
			max_streak INTEGER NOT NULL DEFAULT 0,
			rounds_played INTEGER NOT NULL DEFAULT 0,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			client_seed TEXT,
			nonce_start INTEGER NOT NULL DEFAULT 0,
			nonce_end INTEGER NOT NULL DEFAULT 0,
			engine_version TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			nonce INTEGER,
			draw REAL,
			entry_id TEXT NOT NULL,
			multiplier TEXT NOT NULL,
			credited INTEGER NOT NULL DEFAULT 0,
			held INTEGER NOT NULL DEFAULT 0,
			points INTEGER NOT NULL DEFAULT 0,
			delta INTEGER NOT NULL DEFAULT 0,
			details TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS balances (
			account TEXT PRIMARY KEY,
			balance INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account TEXT NOT NULL,
			session_id TEXT,
			game TEXT,
			round INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL,
			amount INTEGER NOT NULL,
			payout INTEGER NOT NULL DEFAULT 0,
			released INTEGER NOT NULL DEFAULT 0,
			bonus INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_session ON rounds(session_id, round)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger(account)`,
	}

	for _, migration := range baseMigrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("base migration failed: %w", err)
		}
	}

	// Then, add new columns if they don't exist
	alterMigrations := []string{
		`ALTER TABLE sessions ADD COLUMN server_seed_hash TEXT`,
		`ALTER TABLE sessions ADD COLUMN completed_at DATETIME`,
		`ALTER TABLE rounds ADD COLUMN tier TEXT`,
	}

	for _, migration := range alterMigrations {
		if _, err := s.db.Exec(migration); err != nil {
			if !isDuplicateColumnError(err) {
				return fmt.Errorf("alter migration failed: %w", err)
			}
		}
	}

	// Finally, create performance indexes
	indexMigrations := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_account_game ON sessions(account, game, created_at DESC)`,
	}

	for _, migration := range indexMigrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("index migration failed: %w", err)
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return strings.Contains(err.Error(), "duplicate column name")
}

// Apply records d in the ledger and moves the account balance. It fails
// with ErrInsufficientFunds, changing nothing, if the balance would go
// negative.
func (s *SQLiteDB) Apply(d session.Delta) error {
	if d.Account == "" {
		return fmt.Errorf("store: delta has no account")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRow(`INSERT INTO balances (account, balance) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET balance = balances.balance + excluded.balance
		RETURNING balance`, d.Account, d.Amount).Scan(&balance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if balance < 0 {
		return fmt.Errorf("%w: %s needs %d more", ErrInsufficientFunds, d.Account, -balance)
	}

	_, err = tx.Exec(`INSERT INTO ledger (account, session_id, game, round, reason, amount, payout, released, bonus)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Account, d.SessionID, d.Game, d.Round, string(d.Reason), d.Amount, d.Payout, d.Released, d.Bonus)
	if err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	return tx.Commit()
}

// Balance returns the account's balance; unknown accounts have zero.
func (s *SQLiteDB) Balance(account string) (int64, error) {
	var balance int64
	err := s.db.QueryRow("SELECT balance FROM balances WHERE account = ?", account).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// HasAccount reports whether account has a balance row.
func (s *SQLiteDB) HasAccount(account string) (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM balances WHERE account = ?)", account).Scan(&exists)
	return exists, err
}

// SaveSession saves a session to the database
func (s *SQLiteDB) SaveSession(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO sessions (
		id, account, game, stake, status, end_reason, payout, bonus, forfeited,
		score, max_streak, rounds_played, elapsed_ms, server_seed_hash, client_seed,
		nonce_start, nonce_end, engine_version, created_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		sess.ID, sess.Account, sess.Game, sess.Stake, sess.Status, sess.EndReason,
		sess.Payout, sess.Bonus, sess.Forfeited, sess.Score, sess.MaxStreak,
		sess.RoundsPlayed, sess.ElapsedMs, sess.ServerSeedHash, sess.ClientSeed,
		sess.NonceStart, sess.NonceEnd, sess.EngineVersion, sess.CreatedAt, nullTime(sess.CompletedAt),
	)

	return err
}

// UpdateSession updates an existing session in the database
func (s *SQLiteDB) UpdateSession(sess *Session) error {
	query := `UPDATE sessions SET
		status = ?, end_reason = ?, payout = ?, bonus = ?, forfeited = ?, score = ?,
		max_streak = ?, rounds_played = ?, elapsed_ms = ?, nonce_end = ?, completed_at = ?
		WHERE id = ?`

	res, err := s.db.Exec(query,
		sess.Status, sess.EndReason, sess.Payout, sess.Bonus, sess.Forfeited, sess.Score,
		sess.MaxStreak, sess.RoundsPlayed, sess.ElapsedMs, sess.NonceEnd, nullTime(sess.CompletedAt),
		sess.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sess.ID)
	}
	return nil
}

// SaveRound saves one settled round
func (s *SQLiteDB) SaveRound(r *Round) error {
	res, err := s.db.Exec(`INSERT INTO rounds (
		session_id, round, nonce, draw, entry_id, multiplier, credited, held, points, delta, tier, details
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Round, nullUint(r.Nonce), nullFloat(r.Draw), r.EntryID, r.Multiplier,
		r.Credited, r.Held, r.Points, r.Delta, r.Tier, r.Details,
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

const sessionColumns = `id, account, game, stake, status, end_reason, payout, bonus, forfeited,
	score, max_streak, rounds_played, elapsed_ms, server_seed_hash, client_seed,
	nonce_start, nonce_end, engine_version, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var endReason, seedHash, clientSeed sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&sess.ID, &sess.Account, &sess.Game, &sess.Stake, &sess.Status, &endReason,
		&sess.Payout, &sess.Bonus, &sess.Forfeited, &sess.Score, &sess.MaxStreak,
		&sess.RoundsPlayed, &sess.ElapsedMs, &seedHash, &clientSeed,
		&sess.NonceStart, &sess.NonceEnd, &sess.EngineVersion, &sess.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	// Handle nullable fields
	sess.EndReason = endReason.String
	sess.ServerSeedHash = seedHash.String
	sess.ClientSeed = clientSeed.String
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return &sess, nil
}

// GetSession retrieves a session by ID
func (s *SQLiteDB) GetSession(id string) (*Session, error) {
	sess, err := scanSession(s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return sess, err
}

// ListSessions retrieves sessions with pagination and filtering
func (s *SQLiteDB) ListSessions(query SessionsQuery) (*SessionsList, error) {
	// Build WHERE clause for filtering
	var conds []string
	args := []any{}

	if query.Account != "" {
		conds = append(conds, "account = ?")
		args = append(args, query.Account)
	}
	if query.Game != "" {
		conds = append(conds, "game = ?")
		args = append(args, query.Game)
	}
	whereClause := ""
	if len(conds) > 0 {
		whereClause = "WHERE " + strings.Join(conds, " AND ")
	}

	var totalCount int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sessions "+whereClause, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	page, perPage, totalPages, offset := pageBounds(query.Page, query.PerPage, 50, totalCount)

	mainQuery := "SELECT " + sessionColumns + " FROM sessions " + whereClause + `
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	args = append(args, perPage, offset)

	rows, err := s.db.Query(mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return &SessionsList{
		Sessions:   sessions,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// GetRounds retrieves a session's rounds in play order with server-side
// pagination.
func (s *SQLiteDB) GetRounds(sessionID string, page, perPage int) (*RoundsPage, error) {
	var totalCount int
	err := s.db.QueryRow("SELECT COUNT(*) FROM rounds WHERE session_id = ?", sessionID).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get rounds count: %w", err)
	}

	page, perPage, totalPages, offset := pageBounds(page, perPage, 100, totalCount)

	rows, err := s.db.Query(`SELECT id, session_id, round, nonce, draw, entry_id, multiplier,
		credited, held, points, delta, tier, details
		FROM rounds WHERE session_id = ?
		ORDER BY round
		LIMIT ? OFFSET ?`, sessionID, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	rounds := []Round{}
	for rows.Next() {
		var r Round
		var nonce sql.NullInt64
		var draw sql.NullFloat64
		var tier, details sql.NullString

		err := rows.Scan(&r.ID, &r.SessionID, &r.Round, &nonce, &draw, &r.EntryID, &r.Multiplier,
			&r.Credited, &r.Held, &r.Points, &r.Delta, &tier, &details)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		if nonce.Valid {
			n := uint64(nonce.Int64)
			r.Nonce = &n
		}
		if draw.Valid {
			r.Draw = &draw.Float64
		}
		r.Tier = tier.String
		r.Details = details.String
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rounds: %w", err)
	}

	return &RoundsPage{
		Rounds:     rounds,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// LastGatedStart returns the newest session start for account and game.
func (s *SQLiteDB) LastGatedStart(account, game string) (time.Time, error) {
	var at time.Time
	err := s.db.QueryRow(`SELECT created_at FROM sessions
		WHERE account = ? AND game = ?
		ORDER BY created_at DESC LIMIT 1`, account, game).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	return at, err
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullUint(n *uint64) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
