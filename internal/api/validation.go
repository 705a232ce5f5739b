package api

import (
	"fmt"
	"strings"

	"github.com/MJE43/coin-reward-engine/internal/games"
	"github.com/MJE43/coin-reward-engine/internal/session"
	"github.com/MJE43/coin-reward-engine/internal/simulate"
)

const (
	maxAccountLen   = 128
	maxTickMs       = 24 * 60 * 60 * 1000
	maxSimTimeout   = 300_000 // 5 minutes
	maxGrantAmount  = 1_000_000_000
	maxVerifyFloats = 1024
)

// fieldError names the request field that failed validation.
type fieldError struct {
	field   string
	message string
}

func (e *fieldError) Error() string { return e.message }

func invalid(field, format string, args ...any) error {
	return &fieldError{field: field, message: fmt.Sprintf(format, args...)}
}

func validateAccount(account string) error {
	switch {
	case strings.TrimSpace(account) == "":
		return invalid("account", "account is required")
	case len(account) > maxAccountLen:
		return invalid("account", "account too long (max %d)", maxAccountLen)
	}
	return nil
}

// ValidateStartSessionRequest checks the account and game.
func ValidateStartSessionRequest(req *StartSessionRequest) error {
	if err := validateAccount(req.Account); err != nil {
		return err
	}
	if req.Game == "" {
		return invalid("game", "game is required")
	}
	if req.Stake != nil && *req.Stake < 0 {
		return invalid("stake", "stake must be >= 0")
	}
	return nil
}

// ValidateOutcomeRequest requires an entry ID.
func ValidateOutcomeRequest(req *OutcomeRequest) error {
	if strings.TrimSpace(req.EntryID) == "" {
		return invalid("entry_id", "entry_id is required")
	}
	return nil
}

// ValidateTickRequest bounds the elapsed time.
func ValidateTickRequest(req *TickRequest) error {
	if req.ElapsedMs < 0 {
		return invalid("elapsed_ms", "elapsed_ms must be >= 0")
	}
	if req.ElapsedMs > maxTickMs {
		return invalid("elapsed_ms", "elapsed_ms too large (max %d)", maxTickMs)
	}
	return nil
}

// ValidateEndRequest accepts "finished" and "bust".
func ValidateEndRequest(req *EndRequest) error {
	if req.Reason != session.EndFinished && req.Reason != session.EndBust {
		return invalid("reason", "reason must be one of: %s, %s", session.EndFinished, session.EndBust)
	}
	return nil
}

// ValidateGrantRequest requires a positive amount.
func ValidateGrantRequest(req *GrantRequest) error {
	if req.Amount <= 0 || req.Amount > maxGrantAmount {
		return invalid("amount", "amount must be between 1 and %d", maxGrantAmount)
	}
	return nil
}

// ValidateVerifyRequest validates a verify request
func ValidateVerifyRequest(req *VerifyRequest) error {
	if req.Game == "" {
		return invalid("game", "game is required")
	}
	if _, exists := games.GetGame(req.Game); !exists {
		return invalid("game", "game '%s' not found", req.Game)
	}
	if req.Seeds.Server == "" {
		return invalid("seeds.server", "server seed is required")
	}
	if req.Seeds.Client == "" {
		return invalid("seeds.client", "client seed is required")
	}
	if req.Count < 0 || req.Count > maxVerifyFloats {
		return invalid("count", "count must be between 0 and %d", maxVerifyFloats)
	}
	return nil
}

// ValidateSimulateRequest validates a simulation request
func ValidateSimulateRequest(req *SimulateRequest) error {
	if req.Game == "" {
		return invalid("game", "game is required")
	}
	if req.Seeds.Server == "" {
		return invalid("seeds.server", "server seed is required")
	}
	if req.Sessions <= 0 || req.Sessions > simulate.MaxSessions {
		return invalid("sessions", "sessions must be between 1 and %d", simulate.MaxSessions)
	}
	if req.MaxRounds < 0 {
		return invalid("max_rounds", "max_rounds must be >= 0")
	}
	if req.RoundTimeMs < 0 {
		return invalid("round_time_ms", "round_time_ms must be >= 0")
	}
	if req.TimeoutMs < 0 {
		return invalid("timeout_ms", "timeout_ms must be >= 0")
	}
	if req.TimeoutMs > maxSimTimeout {
		return invalid("timeout_ms", "timeout_ms too large (max %d ms)", maxSimTimeout)
	}
	return nil
}
