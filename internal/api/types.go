package api

import (
	"github.com/MJE43/coin-reward-engine/internal/engine"
	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/resolver"
	"github.com/MJE43/coin-reward-engine/internal/seedvault"
	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/MJE43/coin-reward-engine/internal/simulate"
	"github.com/MJE43/coin-reward-engine/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidSeed   = "invalid_seed"
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeInvalidStake  = "invalid_stake"
	ErrTypeOutOfRange    = "draw_out_of_range"
	ErrTypeUnknownEntry  = "unknown_entry"
	ErrTypeValidation    = "validation_error"

	// Game-related errors
	ErrTypeGameNotFound   = "game_not_found"
	ErrTypeGameEvaluation = "game_evaluation_error"

	// Session and wallet errors
	ErrTypeSessionNotFound   = "session_not_found"
	ErrTypeSessionNotLive    = "session_not_live"
	ErrTypeInvalidTransition = "invalid_state_transition"
	ErrTypeInsufficientFunds = "insufficient_funds"
	ErrTypeGateClosed        = "gate_closed"
	ErrTypeSessionBusy       = "session_busy"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategorySession    ErrorCategory = "session"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidSeed, ErrTypeInvalidParams, ErrTypeInvalidStake, ErrTypeOutOfRange,
		ErrTypeUnknownEntry, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeGameNotFound, ErrTypeGameEvaluation:
		return CategoryGame
	case ErrTypeSessionNotFound, ErrTypeSessionNotLive, ErrTypeInvalidTransition,
		ErrTypeInsufficientFunds, ErrTypeGateClosed, ErrTypeSessionBusy:
		return CategorySession
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// GamesResponse represents the games metadata response
type GamesResponse struct {
	Games         []games.Spec `json:"games"`
	EngineVersion string       `json:"engine_version"`
}

// GameResponse is one game's full public view.
type GameResponse struct {
	Game          games.Info `json:"game"`
	EngineVersion string     `json:"engine_version"`
}

// StartSessionRequest opens a session. Stake defaults to the game's stake.
type StartSessionRequest struct {
	Account string `json:"account"`
	Game    string `json:"game"`
	Stake   *int64 `json:"stake,omitempty"`
}

// SessionResponse carries a session's stored record and, while it is live,
// the tracker's state.
type SessionResponse struct {
	Session       store.Session        `json:"session"`
	State         *session.State       `json:"state,omitempty"`
	Commitment    seedvault.Commitment `json:"commitment"`
	Balance       int64                `json:"balance"`
	EngineVersion string               `json:"engine_version"`
}

// ResolveRequest settles one round from a server-side draw.
type ResolveRequest struct {
	Signal   *resolver.Signal `json:"signal,omitempty"`
	Terminal bool             `json:"terminal,omitempty"`
	Bust     bool             `json:"bust,omitempty"`
}

// OutcomeRequest settles one round whose entry the client already knows.
type OutcomeRequest struct {
	EntryID  string           `json:"entry_id"`
	Signal   *resolver.Signal `json:"signal,omitempty"`
	Terminal bool             `json:"terminal,omitempty"`
	Bust     bool             `json:"bust,omitempty"`
}

// RoundResponse is the result of a resolve or outcome call.
type RoundResponse struct {
	Outcome       session.Outcome `json:"outcome"`
	Nonce         *uint64         `json:"nonce,omitempty"`
	Balance       int64           `json:"balance"`
	EngineVersion string          `json:"engine_version"`
}

// TickRequest advances session time.
type TickRequest struct {
	ElapsedMs int64 `json:"elapsed_ms"`
}

// StateResponse is returned by tick.
type StateResponse struct {
	State         session.State  `json:"state"`
	Status        session.Status `json:"status"`
	Balance       int64          `json:"balance"`
	EngineVersion string         `json:"engine_version"`
}

// EndRequest ends a session early: "finished" or "bust".
type EndRequest struct {
	Reason session.EndReason `json:"reason"`
}

// SummaryResponse wraps a completed session's summary.
type SummaryResponse struct {
	Summary       session.Summary `json:"summary"`
	Balance       int64           `json:"balance"`
	EngineVersion string          `json:"engine_version"`
}

// BalanceResponse is an account's coin balance and seed commitment.
type BalanceResponse struct {
	Account       string               `json:"account"`
	Balance       int64                `json:"balance"`
	Commitment    seedvault.Commitment `json:"commitment"`
	EngineVersion string               `json:"engine_version"`
}

// GrantRequest credits coins to an account outside a session.
type GrantRequest struct {
	Amount int64 `json:"amount"`
}

// RotateRequest retires the active server seed.
type RotateRequest struct {
	ClientSeed string `json:"client_seed,omitempty"`
}

// RotateResponse reveals the retired seed pair and commits to the next.
type RotateResponse struct {
	Revealed      seedvault.Reveal     `json:"revealed"`
	Next          seedvault.Commitment `json:"next"`
	EngineVersion string               `json:"engine_version"`
}

// VerifyRequest replays one draw against a game's table.
type VerifyRequest struct {
	Game  string       `json:"game"`
	Seeds engine.Seeds `json:"seeds"`
	Nonce uint64       `json:"nonce"`
	Stake *int64       `json:"stake,omitempty"`
	// Count asks for the first Count floats of the nonce's stream, which a
	// simulated session at that nonce consumes one per round. Defaults to 1.
	Count int `json:"count,omitempty"`
}

// VerifyResponse is the replayed draw and the entry it selects.
type VerifyResponse struct {
	Nonce          uint64          `json:"nonce"`
	ServerSeedHash string          `json:"server_seed_hash"`
	Result         resolver.Result `json:"result"`
	Floats         []float64       `json:"floats"`
	EngineVersion  string          `json:"engine_version"`
	Echo           VerifyRequest   `json:"echo"`
}

// SimulateRequest is simulate.Request with the round time in milliseconds.
type SimulateRequest struct {
	Game        string       `json:"game"`
	Seeds       engine.Seeds `json:"seeds"`
	NonceStart  uint64       `json:"nonce_start"`
	Sessions    int          `json:"sessions"`
	Stake       int64        `json:"stake,omitempty"`
	MaxRounds   int          `json:"max_rounds,omitempty"`
	RoundTimeMs int64        `json:"round_time_ms,omitempty"`
	TimeoutMs   int          `json:"timeout_ms,omitempty"`
}

// SimulateResponse wraps the simulation result.
type SimulateResponse struct {
	Result        *simulate.Result `json:"result"`
	EngineVersion string           `json:"engine_version"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status        string `json:"status"`
	EngineVersion string `json:"engine_version"`
	Timestamp     string `json:"timestamp"`
}
